// Package stream consumes server-push log streams.
//
// A Consumer holds at most one connection per subscription key and appends
// every message payload, verbatim and in arrival order, to its Buffer.
// Connection lifecycle is modelled by the pure Transition function over
// {connecting, open, error, closed}; transport errors are mapped to a single
// status indicator by Classify. Transports are pluggable through Dialer:
// SSEDialer handles http/https event streams and WebSocketDialer handles
// ws/wss.
package stream
