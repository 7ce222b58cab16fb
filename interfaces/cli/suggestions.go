package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/specflow/domain/approval"
	"github.com/felixgeelhaar/specflow/domain/suggestion"
)

// reviewOptions holds options for the approve and reject commands.
type reviewOptions struct {
	reviewer   string
	notes      string
	jsonOutput bool
}

// newSuggestionsCmd creates the suggestions command group.
func (a *App) newSuggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "suggestions",
		Aliases: []string{"suggestion", "s"},
		Short:   "List and review contract suggestions",
	}
	cmd.AddCommand(
		a.newSuggestionsListCmd(),
		a.newSuggestionsShowCmd(),
		a.newSuggestionsDecideCmd(suggestion.StatusApproved),
		a.newSuggestionsDecideCmd(suggestion.StatusRejected),
		a.newSuggestionsRequestCmd(),
		a.newSuggestionsMaterializeCmd(),
	)
	return cmd
}

func (a *App) newSuggestionsListCmd() *cobra.Command {
	var (
		status     string
		opName     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suggestions, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := suggestion.ListFilter{OperationName: opName}
			if status != "" {
				st := suggestion.Status(status)
				if !st.IsValid() {
					return fmt.Errorf("%w: %q", suggestion.ErrInvalidStatus, status)
				}
				filter.Status = st
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rt, err := a.newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			list, err := rt.service.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return a.printSuggestions(list, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, approved, rejected)")
	cmd.Flags().StringVar(&opName, "operation", "", "Filter by operation name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *App) newSuggestionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one suggestion as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rt, err := a.newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			s, err := rt.service.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(s)
		},
	}
}

// newSuggestionsDecideCmd creates the approve or reject command.
func (a *App) newSuggestionsDecideCmd(status suggestion.Status) *cobra.Command {
	opts := &reviewOptions{}
	verb := "approve"
	short := "Approve a pending suggestion and materialize it"
	if status == suggestion.StatusRejected {
		verb = "reject"
		short = "Reject a pending suggestion"
	}

	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.reviewer == "" {
				return fmt.Errorf("--reviewer is required")
			}

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rt, err := a.newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			var (
				s        *suggestion.Suggestion
				location string
			)
			if status == suggestion.StatusApproved {
				out, err := rt.service.Approve(cmd.Context(), args[0], opts.reviewer, opts.notes)
				if err != nil {
					return err
				}
				s, location = out.Suggestion, out.Location
			} else {
				s, err = rt.service.Reject(cmd.Context(), args[0], opts.reviewer, opts.notes)
				if err != nil {
					return err
				}
			}

			if opts.jsonOutput {
				return a.printJSON(decisionView{Suggestion: s, Location: location})
			}
			_, _ = fmt.Fprintf(a.stdout, "Suggestion %s %s by %s.\n", s.ID, s.Status, opts.reviewer)
			if location != "" {
				_, _ = fmt.Fprintf(a.stdout, "Written to %s\n", location)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.reviewer, "reviewer", "", "Reviewer recorded on the decision (required)")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "Decision notes")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func (a *App) newSuggestionsRequestCmd() *cobra.Command {
	var (
		sessionID string
		agentID   string
		reason    string
	)

	cmd := &cobra.Command{
		Use:   "request-approval <id>",
		Short: "Send an approval request for a pending suggestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rt, err := a.newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			session := approval.Session{ID: sessionID, AgentID: agentID}
			if session.ID == "" {
				session.ID = cfg.Approval.SessionID
			}
			if session.AgentID == "" {
				session.AgentID = cfg.Approval.AgentID
			}
			if err := rt.service.RequestApproval(cmd.Context(), args[0], session, reason); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Approval requested for %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID (overrides approval.session_id)")
	cmd.Flags().StringVar(&agentID, "agent", "", "Agent ID (overrides approval.agent_id)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the reviewer (defaults to the summary)")
	return cmd
}

func (a *App) newSuggestionsMaterializeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "materialize <id>",
		Short: "Write an approved suggestion again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rt, err := a.newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			location, err := rt.service.Materialize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if location == "" {
				_, _ = fmt.Fprintln(a.stdout, "No writer configured.")
				return nil
			}
			_, _ = fmt.Fprintf(a.stdout, "Written to %s\n", location)
			return nil
		},
	}
}
