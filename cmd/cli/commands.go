package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/and161185/furni/internal/model"
)

type productView struct {
	ID         int64   `json:"id"`
	Collection string  `json:"collection,omitempty"`
	Name       string  `json:"name,omitempty"`
	Price      float64 `json:"price,omitempty"`
}

type profileView struct {
	IdentityID        string        `json:"identity_id,omitempty"`
	Fresh             bool          `json:"fresh"`
	TwitterUserID     string        `json:"twitter_user_id,omitempty"`
	TwitterUserName   string        `json:"twitter_user_name,omitempty"`
	DigitsUserID      string        `json:"digits_user_id,omitempty"`
	DigitsPhoneNumber string        `json:"digits_phone_number,omitempty"`
	FullName          string        `json:"full_name,omitempty"`
	ImagePath         string        `json:"image,omitempty"`
	Favorites         []productView `json:"favorites"`
	ContactsUploaded  bool          `json:"contacts_uploaded"`
}

type friendView struct {
	IdentityID  string        `json:"identity_id"`
	PhoneNumber string        `json:"phone_number,omitempty"`
	FullName    string        `json:"full_name,omitempty"`
	ImagePath   string        `json:"image,omitempty"`
	Favorites   []productView `json:"favorites"`
}

func toProductViews(ps []model.Product) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, productView{ID: p.ID, Collection: p.Collection, Name: p.Name, Price: p.Price})
	}
	return out
}

func (a *app) profileView() (profileView, bool) {
	p := a.mgr.Profile()
	if p == nil {
		return profileView{}, false
	}
	_, fresh := a.mgr.Identity()
	return profileView{
		IdentityID:        string(p.FederatedID),
		Fresh:             fresh,
		TwitterUserID:     p.TwitterUserID,
		TwitterUserName:   p.TwitterUserName,
		DigitsUserID:      p.DigitsUserID,
		DigitsPhoneNumber: p.DigitsPhoneNumber,
		FullName:          p.FullName,
		ImagePath:         p.ImagePath,
		Favorites:         toProductViews(p.Favorites),
		ContactsUploaded:  a.mgr.HasUploadedContacts(),
	}, true
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printProfile() error {
	v, ok := a.profileView()
	if !ok {
		_, err := fmt.Fprintln(a.out, "not signed in")
		return err
	}
	return printJSON(a.out, v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "furni %s (%s)\n", version, buildDate)
			return err
		},
	}
}

func newLoginCmd(opts *options) *cobra.Command {
	var lf loginFlags
	cmd := &cobra.Command{
		Use:       "login <twitter|digits>",
		Short:     "Sign in with a provider and link it to the federated identity",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"twitter", "digits"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := model.ParseProvider(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, lf, func(ctx context.Context, a *app) error {
				if err := a.mgr.Authenticate(ctx, p); err != nil {
					return fmt.Errorf("login %s: %w", p.Name(), err)
				}
				if err := a.settle(ctx); err != nil {
					return err
				}
				return a.printProfile()
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&lf.UserID, "user-id", "", "provider user id")
	f.StringVar(&lf.UserName, "user-name", "", "Twitter user name")
	f.StringVar(&lf.Phone, "phone", "", "Digits phone number")
	f.StringVar(&lf.Email, "email", "", "Digits email address")
	f.StringVar(&lf.Token, "token", "", "provider auth token")
	f.StringVar(&lf.Secret, "secret", "", "provider auth token secret")
	return cmd
}

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of every provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, loginFlags{}, func(ctx context.Context, a *app) error {
				if !a.mgr.IsLoggedIn() {
					_, err := fmt.Fprintln(a.out, "not signed in")
					return err
				}
				if err := a.mgr.SignOut(ctx); err != nil {
					return err
				}
				// Lets the cleared provider properties reach the dataset.
				if err := a.settle(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(a.out, "signed out")
				return err
			})
		},
	}
}

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, loginFlags{}, func(_ context.Context, a *app) error {
				return a.printProfile()
			})
		},
	}
}

func newRefreshCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Retry a failed identity exchange or registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, loginFlags{}, func(ctx context.Context, a *app) error {
				if err := a.mgr.RefreshProfile(ctx); err != nil {
					return err
				}
				if err := a.settle(ctx); err != nil {
					return err
				}
				return a.printProfile()
			})
		},
	}
}

func newFavoritesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "favorites",
		Short: "List favorite products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, loginFlags{}, func(_ context.Context, a *app) error {
				p := a.mgr.Profile()
				if p == nil {
					_, err := fmt.Fprintln(a.out, "not signed in")
					return err
				}
				return printJSON(a.out, toProductViews(p.Favorites))
			})
		},
	}
}

func newFavoriteCmd(opts *options) *cobra.Command {
	var (
		product model.Product
		remove  bool
	)
	cmd := &cobra.Command{
		Use:   "favorite <productID>",
		Short: "Add a product to favorites, or remove it with --remove",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("product id %q: %w", args[0], err)
			}
			product.ID = id
			return opts.run(cmd, loginFlags{}, func(ctx context.Context, a *app) error {
				if err := a.mgr.SetFavorite(ctx, product, !remove); err != nil {
					return err
				}
				var favs []model.Product
				if p := a.mgr.Profile(); p != nil {
					favs = p.Favorites
				}
				return printJSON(a.out, toProductViews(favs))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&product.Collection, "collection", "", "product collection")
	f.StringVar(&product.Name, "name", "", "product name")
	f.Float64Var(&product.Price, "price", 0, "product price")
	f.BoolVar(&remove, "remove", false, "remove from favorites")
	return cmd
}

func newFriendsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "friends",
		Short: "List friends found through uploaded contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, loginFlags{}, func(ctx context.Context, a *app) error {
				friends, err := a.mgr.Friends(ctx)
				if err != nil {
					return err
				}
				out := make([]friendView, 0, len(friends))
				for _, f := range friends {
					out = append(out, friendView{
						IdentityID:  string(f.IdentityID),
						PhoneNumber: f.PhoneNumber,
						FullName:    f.FullName,
						ImagePath:   f.ImagePath,
						Favorites:   toProductViews(f.Favorites),
					})
				}
				return printJSON(a.out, out)
			})
		},
	}
}

func newUploadContactsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload-contacts",
		Short: "Upload the local address book and link matching users as friends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, loginFlags{}, func(ctx context.Context, a *app) error {
				if err := a.mgr.UploadContacts(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(a.out, "contacts uploaded")
				return err
			})
		},
	}
}
