// Package report builds the outage schedule export shared by the CSV
// endpoint and the archive job.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/model"
	"github.com/ioms/backend/internal/repository"
)

const batchSize = 500

// Header is the first CSV record.
var Header = []string{
	"outage_id", "title", "application", "environments", "location", "type", "criticality",
	"status", "scheduled_start", "scheduled_end", "estimated_duration_seconds", "created_by", "approved_by",
}

// Row is one outage resolved to display names.
type Row struct {
	Outage       *model.Outage
	Application  string
	Environments []string
	Location     string
}

// Generator collects outages of one company for a time range.
type Generator struct {
	outages repository.OutageRepository
	apps    repository.ApplicationRepository
}

func NewGenerator(outages repository.OutageRepository, apps repository.ApplicationRepository) *Generator {
	return &Generator{outages: outages, apps: apps}
}

// Schedule returns every outage of the company intersecting rng, ordered by start.
func (g *Generator) Schedule(ctx context.Context, companyID uuid.UUID, rng model.DateRange) ([]Row, error) {
	apps, err := g.apps.List(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	byID := make(map[uuid.UUID]*model.Application, len(apps))
	for _, a := range apps {
		byID[a.ID] = a
	}

	filter := model.OutageFilter{CompanyID: companyID, Window: &rng}
	var rows []Row
	for page := 1; ; page++ {
		batch, total, err := g.outages.List(ctx, filter, model.Pagination{Page: page, PageSize: batchSize})
		if err != nil {
			return nil, fmt.Errorf("list outages: %w", err)
		}
		for _, o := range batch {
			rows = append(rows, resolve(o, byID[o.ApplicationID]))
		}
		if len(batch) < batchSize || page*batchSize >= total {
			break
		}
	}
	return rows, nil
}

func resolve(o *model.Outage, app *model.Application) Row {
	row := Row{Outage: o, Application: o.ApplicationID.String()}
	if app == nil {
		for _, id := range o.EnvironmentIDs {
			row.Environments = append(row.Environments, id.String())
		}
		return row
	}
	row.Application = app.Name
	for _, id := range o.EnvironmentIDs {
		row.Environments = append(row.Environments, app.EnvironmentName(id))
	}
	if o.LocationID != nil {
		row.Location = o.LocationID.String()
		for _, l := range app.Locations {
			if l.ID == *o.LocationID {
				row.Location = l.Name
			}
		}
	}
	return row
}

// WriteCSV writes the header and one record per row.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		o := r.Outage
		duration := ""
		if o.EstimatedDuration != nil {
			duration = strconv.FormatInt(*o.EstimatedDuration, 10)
		}
		approvedBy := ""
		if o.ApprovedBy != nil {
			approvedBy = o.ApprovedBy.String()
		}
		record := []string{
			o.ID.String(),
			o.Title,
			r.Application,
			strings.Join(r.Environments, ";"),
			r.Location,
			string(o.Type),
			string(o.Criticality),
			string(o.Status),
			o.ScheduledStart.UTC().Format(time.RFC3339),
			o.ScheduledEnd.UTC().Format(time.RFC3339),
			duration,
			o.CreatedBy.String(),
			approvedBy,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename names an export of rng.
func Filename(rng model.DateRange) string {
	return fmt.Sprintf("ioms-outages-%s-%s.csv", rng.Start.Format("20060102"), rng.End.Format("20060102"))
}
