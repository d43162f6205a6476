package ws

import "errors"

var errClientBufferFull = errors.New("client send buffer full")
