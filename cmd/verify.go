package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/starreach/starreach-cli/internal/extract"
	"github.com/starreach/starreach-cli/internal/model"
	"github.com/starreach/starreach-cli/internal/render"
)

var verifyURL string

// verifyFixture is a known profile bio; every extractor field listed in
// verifyWant must be recovered from it for the setup to count as working.
const verifyFixture = `Developer advocate. Reach me at jane@example.com,
https://www.linkedin.com/in/janedoe, twitter.com/janedoe,
instagram.com/jane.doe, youtube.com/c/janedoe,
facebook.com/jane.doe and https://bsky.app/profile/jane.bsky.social`

var verifyWant = map[model.Field]string{
	model.FieldEmail:     "jane@example.com",
	model.FieldLinkedIn:  "https://www.linkedin.com/in/janedoe",
	model.FieldTwitter:   "https://x.com/janedoe",
	model.FieldInstagram: "https://instagram.com/jane.doe",
	model.FieldYouTube:   "https://youtube.com/janedoe",
	model.FieldFacebook:  "https://facebook.com/jane.doe",
	model.FieldBluesky:   "https://bsky.app/profile/jane.bsky.social",
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that extraction, rendering and the store are working",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok := true

		got := extract.Extract(verifyFixture)
		for field, want := range verifyWant {
			if v := got[field]; v != want {
				ok = false
				fmt.Printf("FAIL extract %-18s got %q, want %q\n", field, v, want)
			} else {
				fmt.Printf("ok   extract %s\n", field)
			}
		}

		if cfg.GitHub.Token == "" {
			fmt.Println("warn no GitHub token configured (set GITHUB_TOKEN in .env)")
		} else {
			fmt.Println("ok   GitHub token present")
		}

		st, err := initStore(cfg.Store)
		if err != nil {
			ok = false
			fmt.Printf("FAIL store open: %v\n", err)
		} else {
			if _, err := st.Load(cmd.Context()); err != nil {
				ok = false
				fmt.Printf("FAIL store load: %v\n", err)
			} else {
				fmt.Printf("ok   store %s (%s)\n", cfg.Store.Path, cfg.Store.Driver)
			}
			_ = st.Close()
		}

		if err := verifyLocalRender(cmd.Context()); err != nil {
			ok = false
			fmt.Printf("FAIL render fixture: %v\n", err)
		} else {
			fmt.Println("ok   render fixture page")
		}

		if verifyURL != "" {
			text, err := initRenderer(cfg.Render).Render(cmd.Context(), verifyURL)
			if err != nil {
				ok = false
				fmt.Printf("FAIL render %s: %v\n", verifyURL, err)
			} else {
				fmt.Printf("ok   render %s (%d bytes)\n", verifyURL, len(text))
				if c := extract.Extract(text); len(c) > 0 {
					zap.L().Info("contacts found on verify page", zap.Int("fields", len(c)))
				}
			}
		}

		if !ok {
			return eris.New("verification failed")
		}
		fmt.Println("all checks passed")
		return nil
	},
}

// verifyLocalRender serves a fixture page on a loopback listener and fetches
// it through the plain HTTP renderer, then checks that extraction recovers a
// contact from the rendered page. Works offline and without a browser.
func verifyLocalRender(ctx context.Context) error {
	page := "<html><body><p>Contact: fixture@example.com</p><p>" +
		strings.Repeat("filler text ", 60) + "</p></body></html>"

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return eris.Wrap(err, "listen")
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	})}
	go srv.Serve(ln) //nolint:errcheck
	defer srv.Close()

	html, err := render.NewLocal(cfg.Render.Timeout()).Render(ctx, "http://"+ln.Addr().String())
	if err != nil {
		return err
	}
	if got := extract.Extract(html); got[model.FieldEmail] != "fixture@example.com" {
		return eris.Errorf("extraction on rendered page got %q", got[model.FieldEmail])
	}
	return nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifyURL, "url", "", "also render this URL through the renderer chain")
	rootCmd.AddCommand(verifyCmd)
}
