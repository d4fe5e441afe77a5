package federation

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/furni/internal/model"
	"github.com/and161185/furni/internal/session"
)

// Dataset keys written for each provider.
const (
	KeyTwitterUserID     = "twitterUserID"
	KeyTwitterUserName   = "twitterUserName"
	KeyDigitsUserID      = "digitsUserID"
	KeyDigitsPhoneNumber = "digitsPhoneNumber"
)

// ProviderProperties returns the dataset values describing provider p in
// sessions. A provider without a session yields empty values.
func ProviderProperties(p model.Provider, sessions model.SessionSet) map[string]string {
	switch p {
	case model.ProviderTwitter:
		tw, _ := sessions.Twitter()
		return map[string]string{
			KeyTwitterUserID:   tw.ID,
			KeyTwitterUserName: tw.UserName,
		}
	case model.ProviderDigits:
		dg, _ := sessions.Digits()
		return map[string]string{
			KeyDigitsUserID:      dg.ID,
			KeyDigitsPhoneNumber: dg.PhoneNumber,
		}
	}
	return nil
}

func (b *Broker) queueProperties(ev session.Changed) {
	for _, p := range ev.Providers {
		props := ProviderProperties(p, ev.Sessions)
		if len(props) == 0 {
			continue
		}
		if b.pending == nil {
			b.pending = make(map[string]string, len(props))
		}
		for k, v := range props {
			b.pending[k] = v
		}
	}
}

// flushProperties hands the pending properties to the cloud dataset. It is
// fire-and-forget: failures are logged and the values are not requeued.
func (b *Broker) flushProperties(creds model.FederatedCredentials) {
	if len(b.pending) == 0 || creds.IdentityID == "" {
		return
	}
	props := b.pending
	b.pending = nil
	dataset := b.opts.Dataset

	b.loop.Spawn(func(ctx context.Context) {
		if err := b.cloud.PutProperties(ctx, creds, dataset, props); err != nil {
			b.log.Warn("storing session properties failed",
				zap.String("identity", string(creds.IdentityID)),
				zap.String("dataset", dataset),
				zap.Error(err),
			)
			return
		}
		b.log.Debug("session properties synchronized",
			zap.String("identity", string(creds.IdentityID)),
			zap.Int("keys", len(props)),
		)
	})
}
