// Package logx configures digestus' structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// Components receive an injected Logger; there is no package-global logger.
package logx
