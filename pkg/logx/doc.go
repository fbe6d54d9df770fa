// Package logx is a small structured-logging facade over zerolog.
//
// It exists so the rest of the tree never imports zerolog directly, and so
// sinks (console, file, chat) can be swapped at runtime via Service.Apply
// without invalidating loggers that components captured at construction.
package logx
