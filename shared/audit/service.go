package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Config holds configuration for the audit service.
type Config struct {
	// ExportOnStart runs one export and maintenance pass when the service starts.
	ExportOnStart bool

	// Location is the timezone the monthly schedule follows.
	Location *time.Location

	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// Report summarizes one export and maintenance pass.
type Report struct {
	Filename           string
	Tables             int
	Rows               int
	PrunedEdges        int64
	OrphanReservations int64
}

// Service exports the database to a monthly workbook and prunes conflict
// edges left behind by out-of-band edits.
type Service struct {
	config     Config
	exporter   TableExporter
	newWriter  func() ExcelWriter
	archiver   Archiver
	maintainer Maintainer
	logger     Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewService(
	config Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	archiver Archiver,
	maintainer Maintainer,
	logger Logger,
) *Service {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{
		config:     config,
		exporter:   exporter,
		newWriter:  writerFactory,
		archiver:   archiver,
		maintainer: maintainer,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the monthly schedule.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runScheduled()
		}()
	}

	s.wg.Add(1)
	go s.loop()

	s.info("Audit service started")
}

// Stop waits for a pass in progress to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.info("Audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	next := NextRun(s.config.Now(), s.config.Location)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()
	s.info("Next audit scheduled", "time", next)

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.runScheduled()
			next = NextRun(s.config.Now(), s.config.Location)
			timer.Reset(time.Until(next))
			s.info("Next audit scheduled", "time", next)
		}
	}
}

func (s *Service) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	if _, err := s.Run(ctx); err != nil {
		s.fail("Audit pass failed", "error", err)
	}
}

// NextRun returns 00:01 on the first day of the month after now, in loc.
func NextRun(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month()+1, 1, 0, 1, 0, 0, loc)
}

// Run exports every table, archives the workbook under the previous month's
// name and then prunes dangling conflict edges. Maintenance still runs when
// the export fails; both errors are returned joined.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		Filename: ReportFilename(s.config.Now().In(s.config.Location).AddDate(0, -1, 0)),
	}
	exportErr := s.export(ctx, report)
	maintainErr := s.maintain(ctx, report)
	return report, errors.Join(exportErr, maintainErr)
}

func (s *Service) export(ctx context.Context, report *Report) error {
	if s.exporter == nil || s.newWriter == nil {
		return fmt.Errorf("exporter or writer not configured")
	}

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		s.info("No tables to export")
		return nil
	}

	excel := s.newWriter()
	defer excel.Close()

	for _, table := range tables {
		rows, columns, err := s.exporter.GetTableData(ctx, table)
		if err != nil {
			s.fail("Failed to read table", "table", table, "error", err)
			continue
		}
		if err := excel.AddSheet(table); err != nil {
			return fmt.Errorf("add sheet %s: %w", table, err)
		}
		if err := excel.WriteHeader(columns); err != nil {
			return fmt.Errorf("write header %s: %w", table, err)
		}
		for _, row := range rows {
			values := make([]interface{}, len(columns))
			for i, col := range columns {
				values[i] = row[col]
			}
			if err := excel.WriteRow(values); err != nil {
				return fmt.Errorf("write row %s: %w", table, err)
			}
		}
		report.Tables++
		report.Rows += len(rows)
		s.debug("Exported table", "table", table, "rows", len(rows))
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if s.archiver == nil {
		return nil
	}
	if err := s.archiver.Store(ctx, report.Filename, &buf); err != nil {
		return fmt.Errorf("archive %s: %w", report.Filename, err)
	}
	s.info("Audit report archived", "filename", report.Filename, "tables", report.Tables, "rows", report.Rows)
	return nil
}

func (s *Service) maintain(ctx context.Context, report *Report) error {
	if s.maintainer == nil {
		return nil
	}

	pruned, err := s.maintainer.PruneDanglingConflicts(ctx)
	if err != nil {
		return fmt.Errorf("prune conflicts: %w", err)
	}
	report.PrunedEdges = pruned

	orphans, err := s.maintainer.CountOrphanReservations(ctx)
	if err != nil {
		return fmt.Errorf("count orphans: %w", err)
	}
	report.OrphanReservations = orphans

	s.info("Maintenance done", "pruned_edges", pruned, "orphan_reservations", orphans)
	return nil
}

func (s *Service) info(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

func (s *Service) fail(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Error(msg, fields...)
	}
}

func (s *Service) debug(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, fields...)
	}
}
