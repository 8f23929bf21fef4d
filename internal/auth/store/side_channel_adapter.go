package store

import (
	"context"
	"errors"
	"time"
)

// SideChannelAdapter adapts Store to the scs.CtxStore interface so the
// verification side-channel lives in the same database as sessions and
// survives restarts and multiple instances.
type SideChannelAdapter struct {
	store Store
}

func NewSideChannelAdapter(store Store) *SideChannelAdapter {
	return &SideChannelAdapter{store: store}
}

func (a *SideChannelAdapter) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	return a.store.SideChannel().FindSideChannel(ctx, token)
}

func (a *SideChannelAdapter) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	return a.store.SideChannel().SaveSideChannel(ctx, token, b, expiry)
}

func (a *SideChannelAdapter) DeleteCtx(ctx context.Context, token string) error {
	err := a.store.SideChannel().DeleteSideChannel(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Find, Commit and Delete satisfy scs.Store for callers without a context.

func (a *SideChannelAdapter) Find(token string) ([]byte, bool, error) {
	return a.FindCtx(context.Background(), token)
}

func (a *SideChannelAdapter) Commit(token string, b []byte, expiry time.Time) error {
	return a.CommitCtx(context.Background(), token, b, expiry)
}

func (a *SideChannelAdapter) Delete(token string) error {
	return a.DeleteCtx(context.Background(), token)
}
