// Package remote serves a StateEngine over HTTP and provides a client that
// implements the same StateEngine and Machine contracts.
//
// Every call is a POST to /statum.StateEngine/{Method}. Request and
// response bodies are single frames (see wire.WriteFrame) holding a
// protobuf-wire message. The Statum-State-Type and Statum-Input-Type
// headers select the engine registered for that type pair on the server.
//
// Errors travel as error frames carrying the error kind, so that a client
// error matches the same api sentinels with errors.Is as the server side
// error did. Failures that never reached the engine are reported with kind
// transport.
package remote
