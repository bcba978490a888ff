package config

import "context"

type nopPort struct{}

func (nopPort) Write(p []byte) (int, error)                 { return len(p), nil }
func (nopPort) Receive(ctx context.Context) ([]byte, error) { <-ctx.Done(); return nil, ctx.Err() }
func (nopPort) ResetInput() error                           { return nil }
func (nopPort) MaxWriteSize() int                           { return 0 }
func (nopPort) Close() error                                { return nil }
