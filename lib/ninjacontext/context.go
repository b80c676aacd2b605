/*
Copyright 2024 PyNinja Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package ninjacontext holds the single application context constructed
// once in cmd/ninjad's run() and threaded through every handler. It
// replaces what the agent's original implementation did with three
// module-global mutables (env, database, session) — a pattern that works
// for a single-process script but makes every consumer an implicit
// singleton user, impossible to stand up twice in one process (as tests
// need to).
package ninjacontext

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thevickypedia/pyninja-go/lib/authn"
	"github.com/thevickypedia/pyninja-go/lib/backend"
	"github.com/thevickypedia/pyninja-go/lib/config"
	"github.com/thevickypedia/pyninja-go/lib/mfa"
	"github.com/thevickypedia/pyninja-go/lib/portability"
	"github.com/thevickypedia/pyninja-go/lib/ratelimit"
	"github.com/thevickypedia/pyninja-go/lib/session"
)

// Context is the one object every handler and background worker closes
// over. Nothing here is a package-level var; every field is constructed
// by New and owned by whoever holds the Context.
type Context struct {
	Config   *config.Config
	Store    *backend.Store
	Session  *session.State
	Auth     *authn.Pipeline
	MFA      *mfa.Controller
	Limiters []*ratelimit.Limiter
	OS       portability.OS
	Log      *logrus.Entry
}

// New wires every component from a loaded Config. It opens the embedded
// store, so callers must call Close when done (typically deferred in
// cmd/ninjad right after New returns cleanly).
func New(cfg *config.Config, log *logrus.Entry) (*Context, error) {
	hostOS, err := portability.Current()
	if err != nil {
		return nil, err
	}

	store, err := backend.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	sess := session.New()

	limiters := make([]*ratelimit.Limiter, 0, len(cfg.RateLimit))
	for _, rl := range cfg.RateLimit {
		limiters = append(limiters, ratelimit.New(rl.MaxRequests, time.Duration(rl.Seconds)*time.Second))
	}

	channels := mfa.BuildChannels(cfg.GmailUser, cfg.GmailPass, cfg.GmailRecipient, cfg.PushURL, cfg.PushTopic, cfg.PushCredentials)
	mfaLog := log.WithField("component", "mfa")
	mfaController := mfa.NewController(store, channels, mfaLog, nil)
	mfaController.AuthenticatorSecret = cfg.AuthenticatorToken
	mfaController.MFATimeout = cfg.MFATimeoutDuration()
	mfaController.MFAResendDelay = cfg.MFAResendDelayDuration()

	pipeline := &authn.Pipeline{
		Store:           store,
		Session:         sess,
		MFA:             mfaController,
		APIKey:          cfg.APIKey,
		APISecret:       cfg.APISecret,
		RemoteExecution: cfg.RemoteExecution,
		Log:             log.WithField("component", "authn"),
	}

	return &Context{
		Config:   cfg,
		Store:    store,
		Session:  sess,
		Auth:     pipeline,
		MFA:      mfaController,
		Limiters: limiters,
		OS:       hostOS,
		Log:      log,
	}, nil
}

// Close releases the store's single writer connection. The sweeper (if
// started) holds its own independent connection, stopped separately via
// its context cancellation.
func (c *Context) Close() error {
	return c.Store.Close()
}
