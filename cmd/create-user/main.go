// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	iutil "github.com/hyperclast/pagesync/internal/util"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/auth"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

const usage = `Usage: %s

Creates a new user account in the workspace database.

Example:

	# provide password by parameter
	%s --config pagesync.yaml -email alice@example.com -password foobarbaz
	# use password from file
	%s --config pagesync.yaml -email alice@example.com -passwordfile my.pass
	# ask user to provide password
	%s --config pagesync.yaml -email alice@example.com
	# read password from stdin
	%s --config pagesync.yaml -email alice@example.com -passwordstdin < my.pass
	cat my.pass | %s --config pagesync.yaml -email alice@example.com -passwordstdin

Arguments:

`

var (
	configPath  = flag.String("config", "pagesync.yaml", "The path to the config file")
	email       = flag.String("email", "", "The email address of the account to create")
	displayName = flag.String("name", "", "The display name of the account (defaults to the email address)")
	password    = flag.String("password", "", "The password to associate with the account")
	pwdFile     = flag.String("passwordfile", "", "The file to use for the password (e.g. for automated account creation)")
	pwdStdin    = flag.Bool("passwordstdin", false, "Reads the password from stdin")
	orgName     = flag.String("org", "", "Also create an org with this name, with the new user as its admin")
)

func main() {
	name := os.Args[0]
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, usage, name, name, name, name, name, name)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *email == "" {
		flag.Usage()
		os.Exit(1)
	}
	addr := iutil.NormalizeEmail(*email)
	if err := iutil.ValidateEmail(addr); err != nil {
		logrus.Fatalln(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Invalid config file: %s", err)
	}

	pass, err := getPassword(*password, *pwdFile, *pwdStdin, os.Stdin)
	if err != nil {
		logrus.Fatalln(err)
	}
	if err = auth.ValidatePassword(pass); err != nil {
		logrus.Fatalln(err)
	}
	hash, err := auth.HashPassword(pass)
	if err != nil {
		logrus.Fatalln(err)
	}

	cm := sqlutil.NewConnectionManager(nil, cfg.Global.DatabaseOptions)
	caches := caching.NewRistrettoCache(
		cfg.Global.Cache.EstimatedMaxSize, cfg.Global.Cache.MaxAge, caching.DisableMetrics,
	)
	db, err := storage.NewDatabase(cm, &cfg.WorkspaceAPI.Database, caches)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to the workspace database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shown := *displayName
	if shown == "" {
		shown = addr
	}
	user, err := db.CreateUser(ctx, addr, hash, shown)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create the user")
	}
	logrus.Infof("Created user %s (id %d)", addr, user.ID)

	if *orgName != "" {
		org, err := db.CreateOrg(ctx, *orgName, user.ID)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to create the org")
		}
		logrus.Infof("Created org %q (id %d) with %s as admin", org.Name, org.ID, addr)
	}
}

func getPassword(password, pwdFile string, pwdStdin bool, r io.Reader) (string, error) {
	// Password from file
	if pwdFile != "" {
		pw, err := os.ReadFile(pwdFile)
		if err != nil {
			return "", fmt.Errorf("Unable to read password from file: %v", err)
		}
		return strings.TrimSpace(string(pw)), nil
	}

	// Password from stdin
	if pwdStdin {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("Unable to read password from stdin: %v", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	// If no parameter was set, ask the user to provide the password
	if password == "" {
		fmt.Print("Enter Password: ")
		bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("Unable to read password: %v", err)
		}
		fmt.Println()
		fmt.Print("Confirm Password: ")
		bytePassword2, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("Unable to read password: %v", err)
		}
		fmt.Println()
		if strings.TrimSpace(string(bytePassword)) != strings.TrimSpace(string(bytePassword2)) {
			return "", fmt.Errorf("Entered passwords don't match")
		}
		return strings.TrimSpace(string(bytePassword)), nil
	}

	return password, nil
}
