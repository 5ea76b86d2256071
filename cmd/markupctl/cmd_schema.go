package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/services"
	"github.com/rwfshr/markup/internal/utils"
)

var errInvalidSchema = errors.New("schema form has issues")

type upstreamFlags struct {
	url     string
	token   string
	timeout time.Duration
}

func (u *upstreamFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&u.url, "url", utils.SafeEnv("MARKUP_UPSTREAM_URL", "http://localhost:8000"), "Assessment service base URL")
	f.StringVar(&u.token, "token", utils.SafeEnv("MARKUP_TOKEN", ""), "Bearer token (default $MARKUP_TOKEN)")
	f.DurationVar(&u.timeout, "timeout", 15*time.Second, "Request timeout")
}

func (u *upstreamFlags) client() (*client.Client, client.Credentials) {
	return client.New(u.url, client.WithTimeout(u.timeout)), client.Credentials{Token: u.token}
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Lint, flatten, pull and push schema forms",
	}
	cmd.AddCommand(newSchemaLintCmd())
	cmd.AddCommand(newSchemaFlattenCmd())
	cmd.AddCommand(newSchemaPullCmd())
	cmd.AddCommand(newSchemaPushCmd())
	return cmd
}

func newSchemaLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint [form.yaml|-]",
		Short: "Report every problem in a schema form",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := readForm(cmd, args)
			if err != nil {
				return err
			}
			issues := services.Validate(form)
			if len(issues) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d groups\n", len(form.Groups))
				return nil
			}
			printIssues(cmd.OutOrStdout(), issues)
			return fmt.Errorf("%w: %d found", errInvalidSchema, len(issues))
		},
	}
}

func newSchemaFlattenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flatten [form.yaml|-]",
		Short: "Print the schema rows a form publishes as",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := readForm(cmd, args)
			if err != nil {
				return err
			}
			req, err := requestFor(cmd, form)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), req)
		},
	}
}

func newSchemaPullCmd() *cobra.Command {
	var (
		up upstreamFlags
		id int64
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch a markup type as an editable YAML form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, cred := up.client()
			mt, err := c.MarkupType(cmd.Context(), cred, id)
			if err != nil {
				return fmt.Errorf("fetch markup type %d: %w", id, err)
			}
			if issues := services.CheckSchema(mt.Fields); len(issues) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: stored schema %d is inconsistent\n", id)
				printIssues(cmd.ErrOrStderr(), issues)
			}
			out, err := yaml.Marshal(services.SchemaForm{Name: mt.Name, Groups: services.ToEditorForm(mt.Fields)})
			if err != nil {
				return fmt.Errorf("encode form: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	up.register(cmd)
	cmd.Flags().Int64Var(&id, "id", 0, "Markup type id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newSchemaPushCmd() *cobra.Command {
	var (
		up upstreamFlags
		id int64
	)
	cmd := &cobra.Command{
		Use:   "push [form.yaml|-]",
		Short: "Create a markup type from a form, or update one with --id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := readForm(cmd, args)
			if err != nil {
				return err
			}
			req, err := requestFor(cmd, form)
			if err != nil {
				return err
			}
			c, cred := up.client()
			ctx := cmd.Context()
			if id == 0 {
				created, err := c.CreateMarkupType(ctx, cred, req)
				if err != nil {
					return fmt.Errorf("create markup type: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created markup type %d (%d fields)\n", created, len(req.Fields))
				return nil
			}
			prev, err := c.MarkupType(ctx, cred, id)
			if err != nil {
				return fmt.Errorf("fetch markup type %d: %w", id, err)
			}
			req.Fields = services.CarryFieldIDs(prev.Fields, req.Fields)
			kept := 0
			for _, f := range req.Fields {
				if f.ID != 0 {
					kept++
				}
			}
			if err := c.UpdateMarkupType(ctx, cred, id, req); err != nil {
				return fmt.Errorf("update markup type %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated markup type %d (%d fields, %d kept)\n", id, len(req.Fields), kept)
			return nil
		},
	}
	up.register(cmd)
	cmd.Flags().Int64Var(&id, "id", 0, "Markup type id to update (creates when omitted)")
	return cmd
}

func readForm(cmd *cobra.Command, args []string) (services.SchemaForm, error) {
	data, err := readInput(cmd, args)
	if err != nil {
		return services.SchemaForm{}, err
	}
	return loadForm(data)
}

// requestFor validates and flattens, printing issues when the form is invalid.
func requestFor(cmd *cobra.Command, form services.SchemaForm) (services.SchemaRequest, error) {
	req, err := form.Request()
	if verr, ok := services.AsValidationError(err); ok {
		printIssues(cmd.ErrOrStderr(), verr.Issues)
		return req, fmt.Errorf("%w: %d found", errInvalidSchema, len(verr.Issues))
	}
	return req, err
}
