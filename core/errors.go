package core

import "fmt"

type ErrorNotFound struct {
}

func (e ErrorNotFound) Error() string {
	return "Not Found"
}

func NewErrorNotFound() ErrorNotFound {
	return ErrorNotFound{}
}

type ErrorAlreadyExists struct {
}

func (e ErrorAlreadyExists) Error() string {
	return "Already Exists"
}

func NewErrorAlreadyExists() ErrorAlreadyExists {
	return ErrorAlreadyExists{}
}

// ErrorNoCredential is returned when a server has no linked account or
// the linked account carries an empty access token
type ErrorNoCredential struct {
	ServerID uint
}

func (e ErrorNoCredential) Error() string {
	return fmt.Sprintf("server %d has no usable credential", e.ServerID)
}

func NewErrorNoCredential(serverID uint) ErrorNoCredential {
	return ErrorNoCredential{ServerID: serverID}
}

// ErrorStreamingDisabled is returned when a server is flagged no_streaming
type ErrorStreamingDisabled struct {
	Domain string
}

func (e ErrorStreamingDisabled) Error() string {
	return fmt.Sprintf("streaming is disabled for %s", e.Domain)
}

func NewErrorStreamingDisabled(domain string) ErrorStreamingDisabled {
	return ErrorStreamingDisabled{Domain: domain}
}

// ErrorSocketClosed is returned when an operation is attempted on a
// stopped streaming socket
type ErrorSocketClosed struct {
}

func (e ErrorSocketClosed) Error() string {
	return "Socket Closed"
}

func NewErrorSocketClosed() ErrorSocketClosed {
	return ErrorSocketClosed{}
}
