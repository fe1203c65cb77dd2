// Package core holds the types shared by the memory store, the conversation
// engine and the transport layer: chat messages, diary documents and the
// error taxonomy.
package core
