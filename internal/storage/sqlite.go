// Package storage persists search runs in a sqlite database: the finalised
// trigger table, per-template metadata and the injection-scoring table.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cwbudde/algo-inspiral/dsp/core"
	"github.com/cwbudde/algo-inspiral/internal/logger"
	"github.com/cwbudde/algo-inspiral/measure/injfind"
	"github.com/cwbudde/algo-inspiral/search/events"
	"github.com/cwbudde/algo-inspiral/search/template"
	"github.com/cwbudde/algo-inspiral/search/veto"
)

// DefaultDBFile is used when Open is given an empty path.
const DefaultDBFile = "inspiral.db"

const batchSize = 500

var (
	// ErrNilDB is returned by methods called on a nil or closed DB.
	ErrNilDB = errors.New("storage: db is nil")
	// ErrRunNotFound is returned when a run id has no stored run.
	ErrRunNotFound = errors.New("storage: run not found")
	// ErrLength is returned when a report does not match its injections.
	ErrLength = errors.New("storage: injection report length mismatch")
)

// DB wraps the gorm handle of one database file.
type DB struct {
	DB  *gorm.DB
	db  *sql.DB
	log logger.Logger
}

// Run is one stored search run.
type Run struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"`
	SampleRate    float64
	SegmentLength int
	LowFrequency  float64
	SNRThreshold  float64
	ClusterWindow int
	Templates     int
	Triggers      int
	Note          string
	CreatedAt     time.Time
}

// TemplateRow is the parameter record of one template in a run.
type TemplateRow struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"type:varchar(36);uniqueIndex:idx_template_run,priority:1"`
	TemplateIndex int    `gorm:"uniqueIndex:idx_template_run,priority:2"`
	Mass1         float64
	Mass2         float64
	Spin1z        float64
	Spin2z        float64
	PhaseOrder    int
	Approximant   string
}

// TemplateSigma is the per-detector normalisation of one template.
type TemplateSigma struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"type:varchar(36);index:idx_sigma_run,priority:1"`
	TemplateIndex int    `gorm:"index:idx_sigma_run,priority:2"`
	Detector      uint8
	SigmaSq       float64
	PSDRef        string
}

// TriggerRow is one finalised trigger. Absent statistics are NULL.
type TriggerRow struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	RunID         string `gorm:"type:varchar(36);index:idx_trigger_run,priority:1"`
	TemplateIndex int    `gorm:"index:idx_trigger_run,priority:2"`
	Detector      uint8  `gorm:"index:idx_trigger_run,priority:3"`
	TimeIndex     int64  `gorm:"index:idx_trigger_run,priority:4"`
	SNRRe         float64
	SNRIm         float64
	Chisq         *float64
	ChisqDOF      int
	BankChisq     *float64
	BankChisqDOF  int
	AutoChisq     *float64
	AutoChisqDOF  int
}

// InjectionScore is one row of the injection-scoring table.
type InjectionScore struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	RunID            string `gorm:"type:varchar(36);index:idx_injection_run,priority:1"`
	InjectionIndex   int    `gorm:"index:idx_injection_run,priority:2"`
	Time             float64
	Mass1            float64
	Mass2            float64
	Spin1z           float64
	Spin2z           float64
	Distance         float64
	Found            bool
	Ambiguous        bool
	Analyzed         bool
	FoundAfterVetoes bool
	// MissedAfterVetoes is false for a missed injection removed by a veto.
	MissedAfterVetoes bool
}

// RunSummary describes the configuration of a run.
type RunSummary struct {
	Geometry      core.Geometry
	SNRThreshold  float64
	ClusterWindow int
	Note          string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string) (*DB, error) {
	if path == "" {
		path = DefaultDBFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	gdb, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// sqlite serialises writers anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&Run{}, &TemplateRow{}, &TemplateSigma{}, &TriggerRow{}, &InjectionScore{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DB{DB: gdb, db: sqlDB, log: logger.Named("storage")}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) ok() error {
	if d == nil || d.DB == nil {
		return ErrNilDB
	}
	return nil
}

// SaveRun stores or replaces the run record.
func (d *DB) SaveRun(runID string, s RunSummary) error {
	if err := d.ok(); err != nil {
		return err
	}
	run := Run{
		ID:            runID,
		SampleRate:    s.Geometry.SampleRate,
		SegmentLength: s.Geometry.SegmentLength,
		LowFrequency:  s.Geometry.LowFrequency,
		SNRThreshold:  s.SNRThreshold,
		ClusterWindow: s.ClusterWindow,
		Note:          s.Note,
	}
	if err := d.DB.Save(&run).Error; err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// LoadRun returns the stored run record.
func (d *DB) LoadRun(runID string) (*Run, error) {
	if err := d.ok(); err != nil {
		return nil, err
	}
	var run Run
	err := d.DB.Where("id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return &run, nil
}

// SaveTriggers replaces the template and trigger tables of runID with the
// content of acc. The run must have been saved first.
func (d *DB) SaveTriggers(ctx context.Context, runID string, acc *events.Accumulator) error {
	if err := d.ok(); err != nil {
		return err
	}
	if _, err := d.LoadRun(runID); err != nil {
		return err
	}

	templates := acc.Templates()
	triggers := acc.Triggers()

	tRows := make([]TemplateRow, 0, len(templates))
	sRows := make([]TemplateSigma, 0, len(templates))
	for _, rec := range templates {
		tRows = append(tRows, TemplateRow{
			RunID:         runID,
			TemplateIndex: rec.Index,
			Mass1:         rec.Params.Mass1,
			Mass2:         rec.Params.Mass2,
			Spin1z:        rec.Params.Spin1z,
			Spin2z:        rec.Params.Spin2z,
			PhaseOrder:    rec.Params.PhaseOrder,
			Approximant:   rec.Params.Approximant,
		})
		dets := make([]core.DetectorID, 0, len(rec.SigmaSq))
		for det := range rec.SigmaSq {
			dets = append(dets, det)
		}
		sort.Slice(dets, func(i, j int) bool { return dets[i] < dets[j] })
		for _, det := range dets {
			sRows = append(sRows, TemplateSigma{
				RunID:         runID,
				TemplateIndex: rec.Index,
				Detector:      uint8(det),
				SigmaSq:       rec.SigmaSq[det],
				PSDRef:        rec.PSDRef[det],
			})
		}
	}

	rows := make([]TriggerRow, 0, len(triggers))
	for _, tr := range triggers {
		row := TriggerRow{
			RunID:         runID,
			TemplateIndex: tr.Template,
			Detector:      uint8(tr.Detector),
			TimeIndex:     tr.TimeIndex,
			SNRRe:         real(tr.SNR),
			SNRIm:         imag(tr.SNR),
		}
		row.Chisq, row.ChisqDOF = column(tr.Chisq)
		row.BankChisq, row.BankChisqDOF = column(tr.BankChisq)
		row.AutoChisq, row.AutoChisqDOF = column(tr.AutoChisq)
		rows = append(rows, row)
	}

	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&TemplateRow{}, &TemplateSigma{}, &TriggerRow{}} {
			if err := tx.Where("run_id = ?", runID).Delete(model).Error; err != nil {
				return err
			}
		}
		if len(tRows) > 0 {
			if err := tx.CreateInBatches(tRows, batchSize).Error; err != nil {
				return fmt.Errorf("batch insert templates: %w", err)
			}
		}
		if len(sRows) > 0 {
			if err := tx.CreateInBatches(sRows, batchSize).Error; err != nil {
				return fmt.Errorf("batch insert sigmas: %w", err)
			}
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
				return fmt.Errorf("batch insert triggers: %w", err)
			}
		}
		return tx.Model(&Run{}).Where("id = ?", runID).
			Updates(map[string]any{"templates": len(tRows), "triggers": len(rows)}).Error
	})
	if err != nil {
		return fmt.Errorf("saving triggers: %w", err)
	}

	d.log.Info(ctx, "triggers stored",
		logger.String("run", runID),
		logger.Int("templates", len(tRows)),
		logger.Int("triggers", len(rows)))
	return nil
}

// LoadTriggers returns the stored triggers of runID ordered by template,
// detector and time.
func (d *DB) LoadTriggers(runID string) ([]events.Trigger, error) {
	if err := d.ok(); err != nil {
		return nil, err
	}
	var rows []TriggerRow
	err := d.DB.Where("run_id = ?", runID).
		Order("template_index, detector, time_index").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying triggers: %w", err)
	}
	out := make([]events.Trigger, 0, len(rows))
	for _, r := range rows {
		out = append(out, events.Trigger{
			Template: r.TemplateIndex,
			Candidate: events.Candidate{
				TimeIndex: r.TimeIndex,
				Detector:  core.DetectorID(r.Detector),
				SNR:       complex(r.SNRRe, r.SNRIm),
				Chisq:     statistic(r.Chisq, r.ChisqDOF),
				BankChisq: statistic(r.BankChisq, r.BankChisqDOF),
				AutoChisq: statistic(r.AutoChisq, r.AutoChisqDOF),
			},
		})
	}
	return out, nil
}

// LoadTemplates returns the stored template records of runID by index.
func (d *DB) LoadTemplates(runID string) ([]events.TemplateRecord, error) {
	if err := d.ok(); err != nil {
		return nil, err
	}
	var tRows []TemplateRow
	if err := d.DB.Where("run_id = ?", runID).Order("template_index").Find(&tRows).Error; err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}
	var sRows []TemplateSigma
	if err := d.DB.Where("run_id = ?", runID).Find(&sRows).Error; err != nil {
		return nil, fmt.Errorf("querying sigmas: %w", err)
	}

	out := make([]events.TemplateRecord, len(tRows))
	pos := make(map[int]int, len(tRows))
	for i, r := range tRows {
		out[i] = events.TemplateRecord{
			Index: r.TemplateIndex,
			Params: template.Params{
				Mass1:       r.Mass1,
				Mass2:       r.Mass2,
				Spin1z:      r.Spin1z,
				Spin2z:      r.Spin2z,
				PhaseOrder:  r.PhaseOrder,
				Approximant: r.Approximant,
			},
			SigmaSq: map[core.DetectorID]float64{},
			PSDRef:  map[core.DetectorID]string{},
		}
		pos[r.TemplateIndex] = i
	}
	for _, s := range sRows {
		i, ok := pos[s.TemplateIndex]
		if !ok {
			continue
		}
		out[i].SigmaSq[core.DetectorID(s.Detector)] = s.SigmaSq
		out[i].PSDRef[core.DetectorID(s.Detector)] = s.PSDRef
	}
	return out, nil
}

// SaveInjectionReport replaces the injection-scoring table of runID. The
// report must come from classifying injs.
func (d *DB) SaveInjectionReport(ctx context.Context, runID string, injs []injfind.Injection, rep *injfind.Report) error {
	if err := d.ok(); err != nil {
		return err
	}
	if rep == nil {
		return fmt.Errorf("%w: nil report", ErrLength)
	}
	if _, err := d.LoadRun(runID); err != nil {
		return err
	}

	rows := make([]InjectionScore, len(injs))
	for i, inj := range injs {
		rows[i] = InjectionScore{
			RunID:          runID,
			InjectionIndex: i,
			Time:           inj.Time,
			Mass1:          inj.Mass1,
			Mass2:          inj.Mass2,
			Spin1z:         inj.Spin1z,
			Spin2z:         inj.Spin2z,
			Distance:       inj.Distance,
		}
	}
	mark := func(set []int, apply func(*InjectionScore)) error {
		for _, i := range set {
			if i < 0 || i >= len(rows) {
				return fmt.Errorf("%w: index %d of %d", ErrLength, i, len(rows))
			}
			apply(&rows[i])
		}
		return nil
	}
	marks := []struct {
		set   []int
		apply func(*InjectionScore)
	}{
		{rep.FoundAll, func(r *InjectionScore) { r.Found = true }},
		{rep.Ambiguous, func(r *InjectionScore) { r.Ambiguous = true }},
		{rep.FoundAnalyzed, func(r *InjectionScore) { r.Analyzed = true }},
		{rep.MissedAnalyzed, func(r *InjectionScore) { r.Analyzed = true }},
		{rep.FoundAfterVetoes, func(r *InjectionScore) { r.FoundAfterVetoes = true }},
		{rep.MissedAfterVetoes, func(r *InjectionScore) { r.MissedAfterVetoes = true }},
	}
	for _, m := range marks {
		if err := mark(m.set, m.apply); err != nil {
			return err
		}
	}

	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&InjectionScore{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("saving injection scores: %w", err)
	}

	d.log.Info(ctx, "injection scores stored",
		logger.String("run", runID),
		logger.Int("injections", len(rows)),
		logger.Int("found", len(rep.FoundAll)))
	return nil
}

// LoadInjectionScores returns the injection-scoring rows of runID by
// injection index.
func (d *DB) LoadInjectionScores(runID string) ([]InjectionScore, error) {
	if err := d.ok(); err != nil {
		return nil, err
	}
	var rows []InjectionScore
	if err := d.DB.Where("run_id = ?", runID).Order("injection_index").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying injection scores: %w", err)
	}
	return rows, nil
}

func column(s veto.Statistic) (*float64, int) {
	if !s.Valid {
		return nil, 0
	}
	v := s.Value
	return &v, s.DOF
}

func statistic(v *float64, dof int) veto.Statistic {
	if v == nil {
		return veto.Absent()
	}
	return veto.Statistic{Value: *v, DOF: dof, Valid: true}
}
