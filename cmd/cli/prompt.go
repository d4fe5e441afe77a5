package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/and161185/furni/internal/errs"
	"github.com/and161185/furni/internal/model"
)

// loginFlags are the non-interactive login values; missing ones are prompted.
type loginFlags struct {
	UserID   string
	UserName string
	Phone    string
	Email    string
	Token    string
	Secret   string
}

// prompter is the provider.CredentialSource of the CLI: it stands in for the
// provider login screens.
type prompter struct {
	in    *bufio.Reader
	out   io.Writer
	flags loginFlags
}

func newPrompter(in *bufio.Reader, out io.Writer, flags loginFlags) *prompter {
	return &prompter{in: in, out: out, flags: flags}
}

func (p *prompter) source(ctx context.Context, provider model.Provider) (model.ProviderSession, error) {
	ask := func(label, preset string) (string, error) {
		if preset != "" {
			return preset, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprintf(p.out, "%s %s: ", provider.Name(), label)
		line, err := p.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", errs.ErrCanceled
		}
		return strings.TrimSpace(line), nil
	}

	userID, err := ask("user id", p.flags.UserID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errs.ErrCanceled
	}

	var sess model.ProviderSession
	switch provider {
	case model.ProviderTwitter:
		name, err := ask("user name", p.flags.UserName)
		if err != nil {
			return nil, err
		}
		creds, err := p.credentials(ask)
		if err != nil {
			return nil, err
		}
		sess = model.TwitterSession{ID: userID, UserName: name, Creds: creds}
	case model.ProviderDigits:
		phone, err := ask("phone number", p.flags.Phone)
		if err != nil {
			return nil, err
		}
		creds, err := p.credentials(ask)
		if err != nil {
			return nil, err
		}
		sess = model.DigitsSession{ID: userID, PhoneNumber: phone, Email: p.flags.Email, Creds: creds}
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownProvider, provider)
	}
	return sess, nil
}

func (p *prompter) credentials(ask func(label, preset string) (string, error)) (model.Credentials, error) {
	token, err := ask("token", p.flags.Token)
	if err != nil {
		return model.Credentials{}, err
	}
	secret, err := ask("secret", p.flags.Secret)
	if err != nil {
		return model.Credentials{}, err
	}
	return model.Credentials{Token: token, Secret: secret}, nil
}
