////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 edudesk                                                   //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// package main is a terminal chat client for the edudesk dashboard's private
// messaging. It keeps a hub connection open, shows one conversation at a
// time, and tracks unread counts for every other peer.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"gitlab.com/edudesk/chatkit/api"
	"gitlab.com/edudesk/chatkit/chat"
	"gitlab.com/edudesk/chatkit/creds"
	"gitlab.com/edudesk/chatkit/hub"
)

// Flag variables.
var (
	apiURL, hubURL                    string
	token, vaultPath, vaultPassphrase string
	logFile                           string
	logLevel                          int
	userID                            int64
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Connects to the messaging hub and the REST backend and runs an interactive
// chat loop on the terminal. Refer to the flags for details.
var cmd = &cobra.Command{
	Use: "chatkit",
	Short: "Terminal client for edudesk private messaging. Connects to the " +
		"messaging hub and the REST backend and runs an interactive chat " +
		"loop. Refer to the flags for details.",
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {

		// Initialize the logging
		initLog(jww.Threshold(viper.GetInt("logLevel")),
			viper.GetString("log"))

		provider, err := tokenProvider()
		if err != nil {
			jww.FATAL.Panicf("Failed to set up credentials: %+v", err)
		}

		me := viper.GetInt64("userId")
		if me == 0 {
			jww.FATAL.Panicf("A user ID is required; set --userId.")
		}

		backend := api.NewClient(viper.GetString("apiUrl"), provider)

		conn := hub.NewConn(
			viper.GetString("hubUrl"), provider, hub.DefaultParams())
		stateID := conn.OnStateChange(func(state hub.State, err error) {
			if err != nil {
				fmt.Printf("[connection: %s (%v)]\n", state, err)
			} else {
				fmt.Printf("[connection: %s]\n", state)
			}
		})
		defer conn.RemoveStateListener(stateID)

		if err = conn.Connect(context.Background()); err != nil {
			jww.FATAL.Panicf("Failed to connect to hub: %+v", err)
		}
		defer func() { _ = conn.Disconnect() }()

		session := chat.NewSession(me, conn, backend)
		defer session.Close()

		runLoop(session, backend, os.Stdin)
	},
}

// Encrypts a bearer token into a vault file so the token never has to appear
// on the command line again.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Encrypts a bearer token into a vault file.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(jww.Threshold(viper.GetInt("logLevel")),
			viper.GetString("log"))

		if token == "" || vaultPath == "" {
			jww.FATAL.Panicf("Both --token and --vault are required.")
		}

		vault := creds.NewVault(vaultPath)
		if err := vault.Store(token, vaultPassphrase); err != nil {
			jww.FATAL.Panicf("Failed to store token: %+v", err)
		}
		fmt.Printf("Token stored in %s\n", vaultPath)
	},
}

// init is the initialization function for Cobra which defines flags.
func init() {
	cmd.PersistentFlags().StringVarP(&token, "token", "t", "",
		"Bearer token for the backend. Overrides the vault.")
	cmd.PersistentFlags().StringVar(&vaultPath, "vault", "",
		"Path to an encrypted token vault created with the store command.")
	cmd.PersistentFlags().StringVar(&vaultPassphrase, "passphrase", "",
		"Passphrase unlocking the token vault.")
	cmd.PersistentFlags().StringVarP(&logFile, "log", "l", "-",
		"Log output path. By default, logs are printed to stdout. "+
			"To disable logging, set this to empty (\"\").")
	cmd.PersistentFlags().IntVarP(&logLevel, "logLevel", "v", 4,
		"Verbosity level of logging. 0 = TRACE, 1 = DEBUG, 2 = INFO, "+
			"3 = WARN, 4 = ERROR, 5 = CRITICAL, 6 = FATAL")

	cmd.Flags().StringVarP(&apiURL, "apiUrl", "a",
		"http://localhost:5000/api", "Base URL of the REST backend.")
	cmd.Flags().StringVarP(&hubURL, "hubUrl", "u",
		"ws://localhost:5000/hubs/chat", "URL of the messaging hub.")
	cmd.Flags().Int64VarP(&userID, "userId", "i", 0,
		"User ID of the signed-in dashboard user.")

	cmd.AddCommand(storeCmd)

	// Every flag can also come from CHATKIT_* environment variables or a
	// config file found by viper.
	_ = viper.BindPFlags(cmd.PersistentFlags())
	_ = viper.BindPFlags(cmd.Flags())
	viper.SetEnvPrefix("chatkit")
	viper.AutomaticEnv()
}

// tokenProvider builds the credential provider from the flags: a literal
// token wins, otherwise the vault is unlocked with the passphrase.
func tokenProvider() (creds.Provider, error) {
	if t := viper.GetString("token"); t != "" {
		return creds.Static(t), nil
	}

	path := viper.GetString("vault")
	if path == "" {
		return nil, fmt.Errorf("either --token or --vault is required")
	}
	return creds.NewVault(path).Provider(viper.GetString("passphrase")), nil
}

// initLog will enable JWW logging to the given log path with the given
// threshold. If log path is empty, then logging is not enabled. Panics if the
// log file cannot be opened or if the threshold is invalid.
func initLog(threshold jww.Threshold, logPath string) {
	if logPath == "" {
		// Do not enable logging if no log file is set
		return
	} else if logPath != "-" {
		// Set the log file if stdout is not selected

		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)

		// Use log file
		logOutput, err :=
			os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err)
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold < jww.LevelTrace || threshold > jww.LevelFatal {
		panic("Invalid log threshold: " + strconv.Itoa(int(threshold)))
	}

	// Display microseconds if the threshold is set to TRACE or DEBUG
	if threshold == jww.LevelTrace || threshold == jww.LevelDebug {
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	// Enable logging
	jww.SetStdoutThreshold(threshold)
	jww.SetLogThreshold(threshold)
	jww.INFO.Printf("Log level set to: %s", threshold)
}

// runLoop reads commands from the input until it closes. Plain lines are sent
// to the selected peer; lines starting with "/" are commands.
func runLoop(session *chat.Session, backend *api.Client, in io.Reader) {
	fmt.Println("Commands: /contacts [query], /open <userId>, /older, " +
		"/react <messageId> <emoji>, /unread, /quit")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if err := session.Send(context.Background(), line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return

		case "/contacts":
			printContacts(session, backend, strings.Join(fields[1:], " "))

		case "/open":
			if len(fields) != 2 {
				fmt.Println("usage: /open <userId>")
				continue
			}
			peerID, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Printf("invalid user ID %q\n", fields[1])
				continue
			}
			if err = session.Select(context.Background(), peerID); err != nil {
				fmt.Printf("open failed: %v\n", err)
				continue
			}
			printTimeline(session)

		case "/older":
			if err := session.LoadOlder(context.Background()); err != nil {
				fmt.Printf("load failed: %v\n", err)
				continue
			}
			printTimeline(session)

		case "/react":
			if len(fields) != 3 {
				fmt.Println("usage: /react <messageId> <emoji>")
				continue
			}
			messageID, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Printf("invalid message ID %q\n", fields[1])
				continue
			}
			err = session.React(context.Background(), messageID, fields[2])
			if err != nil {
				fmt.Printf("react failed: %v\n", err)
			}

		case "/unread":
			printUnread(session)

		default:
			fmt.Printf("unknown command %s\n", fields[0])
		}
	}
}

// printContacts lists matching contacts with their unread badges.
func printContacts(session *chat.Session, backend *api.Client, query string) {
	contacts, err := backend.SearchContacts(context.Background(), query, 1, 50)
	if err != nil {
		fmt.Printf("search failed: %v\n", err)
		return
	}

	for _, contact := range contacts {
		badge := ""
		if n := session.Unread().Count(contact.ID); n > 0 {
			badge = fmt.Sprintf(" (%d unread)", n)
		}
		fmt.Printf("%6d  %s <%s>%s\n",
			contact.ID, contact.FullName, contact.Email, badge)
	}
}

// printTimeline renders the selected conversation, oldest first, with
// delivery and read checkmarks on the user's own messages.
func printTimeline(session *chat.Session) {
	for _, m := range session.Messages() {
		prefix := "them"
		receipt := ""
		if m.IsMine {
			prefix = "  me"
			switch {
			case m.ReadAt != nil:
				receipt = " ✓✓"
			case m.DeliveredAt != nil:
				receipt = " ✓"
			}
		}

		reactions := ""
		if len(m.Reactions) > 0 {
			glyphs := make([]string, len(m.Reactions))
			for i, r := range m.Reactions {
				glyphs[i] = r.Type
			}
			reactions = "  [" + strings.Join(glyphs, " ") + "]"
		}

		fmt.Printf("%s  %s (%d): %s%s%s\n",
			m.SentAt.Format("15:04"), prefix, m.ID, m.Text, receipt, reactions)
	}
}

// printUnread lists every peer with pending unread messages.
func printUnread(session *chat.Session) {
	counts := session.Unread().Counts()
	if len(counts) == 0 {
		fmt.Println("no unread messages")
		return
	}
	for peer, n := range counts {
		fmt.Printf("user %d: %d unread\n", peer, n)
	}
}
