// Package logx configures newsletterbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller), or JSON when configured
//   - File output JSON-structured
//   - An optional admin alert sink (min-level + rate limiting) delivered through the chat transport
package logx
