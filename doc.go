// Package main provides the entry point for the gendoc web application, an
// intranet service for generating documents from uploaded templates. It wires
// configuration, logging, the credential store and the web service together
// and starts the HTTP daemon.
package main
