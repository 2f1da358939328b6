// Command voter is the interactive voting client. It authenticates the
// voter, refuses a second vote up front, records the vote through
// whichever replica the failover controller is bound to and prints the
// current tally.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"distvote/internal/api"
	"distvote/internal/client"
	"distvote/internal/config"
	"distvote/internal/registry"
)

var candidates = []string{"Candidato A", "Candidato B", "Candidato C"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	config.SetupLogger(cfg)

	reg := registry.NewClient(cfg.RegistryAddr, cfg.RPCTimeout)
	ctl := client.New(reg, cfg.RetryAttempts, cfg.RetryDelay, cfg.RPCTimeout)

	if err := run(context.Background(), ctl); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, ctl *client.Controller) error {
	in := bufio.NewScanner(os.Stdin)

	color.Cyan("=== Distributed Voting ===")

	username, err := prompt(in, "Username: ")
	if err != nil {
		return err
	}
	secret, err := prompt(in, "Password: ")
	if err != nil {
		return err
	}

	ok, err := ctl.Authenticate(ctx, username, secret)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid credentials for %q", username)
	}
	color.Green("Welcome, %s.", username)

	voted, err := ctl.HasVoted(ctx, username)
	if err != nil {
		return fmt.Errorf("checking vote status: %w", err)
	}
	if voted {
		color.Yellow("You have already voted.")
		return printResults(ctx, ctl)
	}

	candidate, err := chooseCandidate(in)
	if err != nil {
		return err
	}

	res := ctl.CastVote(ctx, username, candidate)
	if !res.OK {
		switch res.Code {
		case api.CodeAlreadyVoted:
			color.Yellow("%s", res.Message)
		default:
			return fmt.Errorf("%s", res.Message)
		}
	} else {
		color.Green("%s", res.Message)
	}

	return printResults(ctx, ctl)
}

func chooseCandidate(in *bufio.Scanner) (string, error) {
	fmt.Println("Candidates:")
	for i, c := range candidates {
		fmt.Printf("  %d) %s\n", i+1, c)
	}
	for {
		choice, err := prompt(in, "Your choice: ")
		if err != nil {
			return "", err
		}
		n, err := strconv.Atoi(choice)
		if err != nil || n < 1 || n > len(candidates) {
			color.Yellow("Enter a number between 1 and %d.", len(candidates))
			continue
		}
		return candidates[n-1], nil
	}
}

func printResults(ctx context.Context, ctl *client.Controller) error {
	results, err := ctl.Results(ctx)
	if err != nil {
		return fmt.Errorf("fetching results: %w", err)
	}

	color.Cyan("--- Current results ---")
	if len(results) == 0 {
		fmt.Println("No votes recorded yet.")
		return nil
	}
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-20s %d\n", name, results[name])
	}
	return nil
}

func prompt(in *bufio.Scanner, label string) (string, error) {
	fmt.Print(label)
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("input closed")
	}
	val := strings.TrimSpace(in.Text())
	if val == "" {
		return "", fmt.Errorf("empty input")
	}
	return val, nil
}
