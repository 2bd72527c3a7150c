// # Go Client Package for Real-Time Conversational Voice Agents
//
// This repository provides a Go package for building applications that hold live, two-way voice conversations with a hosted AI agent over a persistent WebSocket. It is designed to be imported into your own Go projects, providing the core functionality to handle microphone capture, low-latency duplex audio streaming, transcripts and call session management.
package convai
