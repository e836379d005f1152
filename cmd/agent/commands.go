package main

import (
	"errors"
	"fmt"

	"github.com/dennisdiepolder/ghosttrack/internal/control"
	"github.com/dennisdiepolder/ghosttrack/internal/enroll"
	"github.com/dennisdiepolder/ghosttrack/internal/stealth"
	"github.com/dennisdiepolder/ghosttrack/internal/types"
	"github.com/dennisdiepolder/ghosttrack/pkg/client"
	"github.com/spf13/cobra"
)

var (
	recompute bool

	registerToken string
	registerUser  string
	registerEmail string
	registerModel string
)

// runCmd hosts the agent
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent until interrupted",
	Long: `Starts the stealth controller and the local control API.

The agent checks the device status after a short delay and again whenever
"notify" reports the host came online or became visible. Once the device is
reported stolen it sends periodic check-ins and executes remote commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()
		return app.run(cmd.Context())
	},
}

// wakeCmd performs one standalone check without a running agent. It never
// fails: schedulers must not surface anything about the covert path.
var wakeCmd = &cobra.Command{
	Use:   "wake",
	Short: "Run a single wake-up check and exit",
	Long: `Loads the mirrored identity, asks the server for the device status and,
if the device is stolen, sends one check-in. Intended for schedulers that
start the binary periodically instead of keeping "run" alive.

The command always exits successfully; run with --log-level debug to see
what happened.`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Debug().Err(err).Msg("wake skipped")
			return nil
		}
		defer app.Close()

		outcome := app.waker().Wake(cmd.Context())
		logger.Debug().
			Err(outcome.Err).
			Str("hardware_id", outcome.HardwareID).
			Str("status", string(outcome.Status)).
			Bool("reported", outcome.Reported).
			Bool("used_fallback", outcome.UsedFallback).
			Msg("wake finished")
		return nil
	},
}

// fingerprintCmd prints the device identity
var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the device identifier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		if recompute {
			if _, err := app.fingerprint.Compute(cmd.Context()); err != nil {
				return err
			}
		}
		ident, err := app.identity(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ident.ID)
		if ident.Degraded {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: identifier is random, not derived from this host")
		}
		return nil
	},
}

// registerCmd enrolls the device with the owner's account
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this device for anti-theft protection",
	Long: `Registers the device under the owner's account. When an agent is running
the request goes through it so its controller re-checks the status right
away; otherwise the registration is performed directly.

Example:
  ghosttrack-agent register --token $TOKEN --user u-123 --email me@example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if registerToken == "" || registerUser == "" {
			return errors.New("--token and --user are required")
		}

		var resp *types.RegistrationResponse
		c := client.NewClient(cfg.ControlURL())
		if c.Health() == nil {
			r, err := c.Register(control.RegisterRequest{
				Token:  registerToken,
				UserID: registerUser,
				Email:  registerEmail,
				Model:  registerModel,
			})
			if err != nil {
				return err
			}
			resp = r
		} else {
			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			r, err := app.enroller(nil).Register(cmd.Context(), enroll.Request{
				Token:  registerToken,
				UserID: registerUser,
				Email:  registerEmail,
				Model:  registerModel,
			})
			if err != nil {
				return err
			}
			resp = &r
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Registered: %s\n", resp.Status)
		return nil
	},
}

// notifyCmd forwards a host event to the running agent
var notifyCmd = &cobra.Command{
	Use:       "notify <online|visible>",
	Short:     "Tell the running agent the host came online or became visible",
	Args:      validateEvent,
	ValidArgs: []string{"online", "visible"},
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := client.NewClient(cfg.ControlURL()).Notify(args[0])
		if err != nil {
			return fmt.Errorf("agent not reachable: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), state)
		return nil
	},
}

func validateEvent(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	_, err := stealth.ParseEvent(args[0])
	return err
}

// trackCmd sends one visible location update
var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Report the current position to the owner's session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var loc types.Location
		c := client.NewClient(cfg.ControlURL())
		if c.Health() == nil {
			l, err := c.Track()
			if err != nil {
				return err
			}
			loc = *l
		} else {
			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			loc, err = app.tracker().Track(cmd.Context())
			if err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%.6f,%.6f\n", loc.Latitude, loc.Longitude)
		return nil
	},
}

// statusCmd shows the running agent's state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running agent's controller state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client.NewClient(cfg.ControlURL()).GetStatus()
		if err != nil {
			return fmt.Errorf("agent not reachable: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "State:       %s\n", status.State)
		fmt.Fprintf(out, "Hardware ID: %s\n", status.HardwareID)
		if status.Degraded {
			fmt.Fprintln(out, "Identity:    random fallback")
		}
		return nil
	},
}

func init() {
	fingerprintCmd.Flags().BoolVar(&recompute, "recompute", false, "Derive the identifier again instead of using the cached one")

	registerCmd.Flags().StringVar(&registerToken, "token", "", "Owner session token")
	registerCmd.Flags().StringVar(&registerUser, "user", "", "Owner user ID")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Owner email")
	registerCmd.Flags().StringVar(&registerModel, "model", "", "Device model description")
}
