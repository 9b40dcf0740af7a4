// mongowire-ping dials a MongoDB server over a single mongowire
// Connection and runs a command round trip, printing the reply
// document as extended JSON. Useful for checking that a server speaks
// the legacy OP_QUERY path and that TLS is set up correctly.
package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/wricardo/mongowire"
	"github.com/wricardo/mongowire/wire"
)

func main() {
	if err := run(os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, w io.Writer) error {
	app := &cli.App{
		Name:            "mongowire-ping",
		Usage:           "ping a MongoDB server over a raw wire-protocol connection",
		Writer:          w,
		ErrWriter:       io.Discard,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "server host"},
			&cli.IntFlag{Name: "port", Value: 27017, Usage: "server port"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "connect timeout"},
			&cli.StringFlag{Name: "db", Value: "admin", Usage: "database to run the command against"},
			&cli.BoolFlag{Name: "ssl", Usage: "connect with TLS"},
			&cli.BoolFlag{Name: "insecure", Usage: "skip TLS certificate verification"},
			&cli.BoolFlag{Name: "hello", Usage: "send isMaster instead of ping"},
			&cli.BoolFlag{Name: "verbose", Usage: "log connection events to stderr"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return fmt.Errorf("unexpected argument %q", c.Args().First())
			}
			return ping(c, w)
		},
	}
	return app.Run(args)
}

func ping(c *cli.Context, w io.Writer) error {
	opts := mongowire.Options{SSL: c.Bool("ssl")}
	if c.Bool("insecure") {
		opts.TLSConfig = insecureTLSConfig()
	}
	if c.Bool("verbose") {
		log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Logger()
		opts.Logger = &log
	}

	conn := mongowire.New(c.String("host"), c.Int("port"), c.Duration("timeout"), opts)
	defer conn.Disconnect()

	cmd := bson.D{{Key: "ping", Value: int32(1)}}
	if c.Bool("hello") {
		cmd = bson.D{{Key: "isMaster", Value: int32(1)}}
	}
	op := wire.NewCommand(c.String("db"), cmd)

	start := time.Now()
	if _, err := conn.Write(op); err != nil {
		return fmt.Errorf("write %s: %w", conn.Address(), err)
	}
	replies, err := conn.ReceiveReplies(op)
	if err != nil {
		return fmt.Errorf("read %s: %w", conn.Address(), err)
	}
	elapsed := time.Since(start)

	for _, reply := range replies[0] {
		if reply.Flags&wire.QueryFailure != 0 {
			return fmt.Errorf("server reported query failure")
		}
		for _, doc := range reply.Documents {
			fmt.Fprintln(w, doc.String())
		}
	}
	fmt.Fprintf(w, "round trip: %s\n", elapsed.Round(time.Microsecond))
	return nil
}

func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}
