package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/and161185/furni/internal/account"
	"github.com/and161185/furni/internal/analytics"
	"github.com/and161185/furni/internal/client"
	"github.com/and161185/furni/internal/config"
	"github.com/and161185/furni/internal/contacts"
	"github.com/and161185/furni/internal/keychain"
	"github.com/and161185/furni/internal/mainloop"
	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/provider"
)

// app is one CLI invocation: the account core restored from the keychain.
type app struct {
	cfg  *config.Client
	log  *zap.Logger
	loop *mainloop.Loop
	kc   *keychain.Keychain
	mgr  *account.Manager
	out  io.Writer
}

func openApp(ctx context.Context, cfg *config.Client, log *zap.Logger, in io.Reader, out io.Writer, login loginFlags) (*app, error) {
	kc, err := keychain.Open(cfg.StateDir, keychain.Options{Log: log})
	if err != nil {
		return nil, err
	}

	hc := &http.Client{Timeout: cfg.RequestTimeout}
	source := newPrompter(bufio.NewReader(in), out, login).source
	loop := mainloop.New(log)

	mgr, err := account.New(account.Deps{
		Loop:    loop,
		Twitter: provider.NewTwitter(source, kc),
		Digits:  provider.NewDigits(source, kc),
		Cloud:   client.NewCloudIdentity(cfg.APIURL, hc, log),
		NewAPI: func(id model.FederatedIdentity, ts oauth2.TokenSource) account.API {
			return client.NewAuthenticatedAPI(cfg.APIURL, id, ts, nil, cfg.RequestTimeout, log)
		},
		Contacts:       contacts.NewBook(cfg.ContactsFile),
		Flags:          kc,
		Analytics:      analytics.NewZapSink(log),
		Log:            log,
		Dataset:        cfg.Dataset,
		RequestTimeout: cfg.RequestTimeout,
		DefaultName:    cfg.DefaultName,
		DefaultImage:   cfg.DefaultImage,
	})
	if err != nil {
		loop.Close()
		_ = kc.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, loop: loop, kc: kc, mgr: mgr, out: out}
	if err := mgr.Restore(ctx); err != nil {
		log.Warn("restore", zap.Error(err))
	}
	if err := a.settle(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// settle waits for the sign-in cascade (exchange, registration, favorites)
// to finish. Network failures inside it are logged, not returned.
func (a *app) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()
	if err := a.mgr.WaitIdle(ctx); err != nil {
		return fmt.Errorf("waiting for the account to settle: %w", err)
	}
	return nil
}

func (a *app) close() {
	a.loop.Close()
	a.mgr.Close()
	if err := a.kc.Close(); err != nil {
		a.log.Warn("close keychain", zap.Error(err))
	}
}
