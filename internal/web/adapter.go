package web

import (
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/gendoc-app/gendoc/internal/router"
	"github.com/gendoc-app/gendoc/internal/web/session"
)

// SessionCookieName is the name of the session cookie.
const SessionCookieName = "session"

// dispatch is the bridge between fiber and the dispatch table: it resolves
// the caller's session, translates the fiber context into a request, runs
// the table and writes the response and any session cookie change back.
func (s *Service) dispatch(c *fiber.Ctx) error {
	incomingID := c.Cookies(SessionCookieName)

	sess, err := s.sessions.Resolve(incomingID)
	if err != nil {
		log.Error().Err(err).Msg("failed to resolve session")

		return c.Status(fiber.StatusInternalServerError).SendString("internal server error")
	}

	if sess.Authenticated() {
		if err := sess.Touch(); err != nil {
			log.Error().Err(err).Msg("failed to stamp session activity")
		}
	}

	req := s.buildRequest(c, sess)

	resp := s.router.Dispatch(req)

	// the handler may have rotated, destroyed or swapped the session
	s.writeSessionCookie(c, incomingID, req)

	return writeResponse(c, resp)
}

func (s *Service) buildRequest(c *fiber.Ctx, sess *session.Session) *router.Request {
	header := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})

	query := make(url.Values)
	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		query.Add(string(key), string(value))
	})

	form := make(url.Values)
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		form.Add(string(key), string(value))
	})

	return &router.Request{
		Method:    c.Method(),
		Path:      c.Path(),
		Query:     query,
		Form:      form,
		Header:    header,
		Body:      c.Body(),
		RemoteIP:  c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Session:   sess,
	}
}

// writeSessionCookie reconciles the client's cookie with the session state
// after dispatch: a destroyed session clears the cookie, a new or rotated id
// replaces it.
func (s *Service) writeSessionCookie(c *fiber.Ctx, incomingID string, req *router.Request) {
	sess := req.Session

	if sess.Destroyed() {
		c.Cookie(s.sessionCookie("", -1))

		return
	}

	if sess.ID() != incomingID {
		c.Cookie(s.sessionCookie(sess.ID(), int(s.cfg.Webserver.Session.ExpiryTime.Seconds())))
	}
}

func (s *Service) sessionCookie(value string, maxAge int) *fiber.Cookie {
	cookie := &fiber.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		MaxAge:   maxAge,
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax",
	}

	if s.cfg.DevMode {
		cookie.Secure = false
	}

	return cookie
}

func writeResponse(c *fiber.Ctx, resp *router.Response) error {
	for key, values := range resp.Header {
		for _, value := range values {
			c.Set(key, value)
		}
	}

	c.Status(resp.Status)

	if len(resp.Body) == 0 {
		return nil
	}

	return c.Send(resp.Body)
}
