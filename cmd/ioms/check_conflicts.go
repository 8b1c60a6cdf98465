package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ioms/backend/internal/container"
	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/outage"
	"github.com/ioms/backend/internal/repository"
)

var errConflicts = errors.New("conflicts detected")

var checkFlags struct {
	company     string
	application string
	location    string
	envs        []string
	from        string
	to          string
	criticality string
	exclude     string
}

var checkConflictsCmd = &cobra.Command{
	Use:   "check-conflicts",
	Short: "Check a proposed outage window against the stored schedule",
	Long: `Runs the same conflict validation as POST /outages/validate/conflicts and
prints the result as JSON. Exits non-zero when the window has conflicts.`,
	Example: `  ioms check-conflicts --company <id> --application <id> --env <id> \
    --from 2026-05-01T15:00:00Z --to 2026-05-01T17:00:00Z --criticality HIGH`,
	RunE: runCheckConflicts,
}

func init() {
	f := checkConflictsCmd.Flags()
	f.StringVar(&checkFlags.company, "company", "", "company id")
	f.StringVar(&checkFlags.application, "application", "", "application id")
	f.StringVar(&checkFlags.location, "location", "", "location id")
	f.StringSliceVar(&checkFlags.envs, "env", nil, "environment id (repeatable)")
	f.StringVar(&checkFlags.from, "from", "", "scheduled start, RFC 3339")
	f.StringVar(&checkFlags.to, "to", "", "scheduled end, RFC 3339")
	f.StringVar(&checkFlags.criticality, "criticality", "", "LOW, MEDIUM, HIGH, CRITICAL or a ranked value")
	f.StringVar(&checkFlags.exclude, "exclude", "", "outage id to leave out, for reschedules")
	for _, name := range []string{"company", "application", "env", "from", "to"} {
		_ = checkConflictsCmd.MarkFlagRequired(name)
	}
}

func runCheckConflicts(cmd *cobra.Command, _ []string) error {
	companyID, err := uuid.Parse(checkFlags.company)
	if err != nil {
		return fmt.Errorf("invalid --company: %w", err)
	}
	req, err := conflictRequest()
	if err != nil {
		return err
	}

	db, err := repository.Open(cmd.Context(), cfg.Database.DSN(), repository.PoolConfig{
		MaxOpenConns: 2,
		MaxIdleConns: 1,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	repos := container.NewPostgresRepositories(db)
	svc := outage.NewService(outage.Deps{
		Tx:           repos.Tx,
		Outages:      repos.Outages,
		History:      repos.History,
		Applications: repos.Applications,
		Companies:    repos.Companies,
		Policy:       cfg.ConflictPolicy(),
		Logger:       logger,
	})

	res, err := svc.ValidateConflicts(cmd.Context(), model.Actor{CompanyID: companyID, Role: model.RoleAdmin}, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.IsValid {
		return errConflicts
	}
	return nil
}

func conflictRequest() (model.ConflictCheckRequest, error) {
	var req model.ConflictCheckRequest
	var err error
	if req.ApplicationID, err = uuid.Parse(checkFlags.application); err != nil {
		return req, fmt.Errorf("invalid --application: %w", err)
	}
	for _, s := range checkFlags.envs {
		id, err := uuid.Parse(s)
		if err != nil {
			return req, fmt.Errorf("invalid --env %q: %w", s, err)
		}
		req.EnvironmentIDs = append(req.EnvironmentIDs, id)
	}
	if checkFlags.location != "" {
		id, err := uuid.Parse(checkFlags.location)
		if err != nil {
			return req, fmt.Errorf("invalid --location: %w", err)
		}
		req.LocationID = &id
	}
	if checkFlags.exclude != "" {
		id, err := uuid.Parse(checkFlags.exclude)
		if err != nil {
			return req, fmt.Errorf("invalid --exclude: %w", err)
		}
		req.ExcludeOutageID = &id
	}
	if req.ScheduledStart, err = time.Parse(time.RFC3339, checkFlags.from); err != nil {
		return req, fmt.Errorf("invalid --from: %w", err)
	}
	if req.ScheduledEnd, err = time.Parse(time.RFC3339, checkFlags.to); err != nil {
		return req, fmt.Errorf("invalid --to: %w", err)
	}
	req.Criticality = checkFlags.criticality
	return req, nil
}
