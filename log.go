package kfs

import "github.com/kfsdev/kfs/logger"

// logFatal bridges errors.go's fatalf to package logger without creating
// an import cycle (logger never imports kfs).
func logFatal(msg string) { logger.Fatal(msg) }
