package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/vjiki/music-ios-bird/internal/ctl"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

type app struct {
	client  *ctl.Client
	node    string
	json    bool
	timeout time.Duration
}

func main() {
	root := &cobra.Command{
		Use:           "bird",
		Short:         "Bird player CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var (
		broker    string
		topicBase string
		identity  string
		node      string
		timeout   time.Duration
		jsonOut   bool
		tlsCA     string
		tlsCert   string
		tlsKey    string
		userOpt   string
		passOpt   string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL (or BIRD_BROKER)")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", bird.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "controller identity")
	root.PersistentFlags().StringVarP(&node, "node", "n", "player", "target node id")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if broker == "" {
			broker = os.Getenv("BIRD_BROKER")
		}
		if broker == "" {
			return errors.New("broker is required (set --broker or BIRD_BROKER)")
		}

		client, err := ctl.NewClient(ctl.Options{
			BrokerURL: broker,
			Identity:  defaultIdentity(identity),
			Username:  userOpt,
			Password:  passOpt,
			TLSCA:     tlsCA,
			TLSCert:   tlsCert,
			TLSKey:    tlsKey,
			TopicBase: topicBase,
			Timeout:   timeout,
		})
		if err != nil {
			return err
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			client:  client,
			node:    node,
			json:    jsonOut,
			timeout: timeout,
		}))
		return nil
	}

	root.AddCommand(nodesCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(toggleCommand())
	root.AddCommand(nextCommand())
	root.AddCommand(prevCommand())
	root.AddCommand(seekCommand())
	root.AddCommand(volumeCommand())
	root.AddCommand(muteCommand())
	root.AddCommand(queueCommand())
	root.AddCommand(jumpCommand())
	root.AddCommand(shuffleCommand())
	root.AddCommand(repeatCommand())
	root.AddCommand(likeCommand())
	root.AddCommand(dislikeCommand())
	root.AddCommand(loadMoreCommand())
	root.AddCommand(cacheCommand())

	if err := root.Execute(); err != nil {
		os.Exit(ctl.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(app *app) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), app.timeout)
}

func defaultIdentity(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "bird-unknown"
}
