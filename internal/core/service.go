package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/stmtnorm/internal/logging"
)

// DefaultWorkers is the per-batch file parallelism when none is configured.
const DefaultWorkers = 4

// ServiceConfig holds everything the pipeline needs besides its stores.
type ServiceConfig struct {
	Rules            []LayoutRule // evaluation order
	BaseCurrency     string
	SheetName        string
	MaxFileSize      int64
	Workers          int
	FuzzyThreshold   float64
	LegacyEncoding   Encoding
	Pivot            int
	HeaderSearchRows int
	SniffLines       int

	// Now is the clock used for archive names and ledger timestamps.
	Now func() time.Time
}

// Service runs the normalization pipeline over a FileStore, recording every
// processed input in a Ledger.
type Service struct {
	cfg    ServiceConfig
	store  FileStore
	ledger Ledger
	logger *slog.Logger
}

// NewService creates a new Service instance.
func NewService(cfg ServiceConfig, store FileStore, ledger Ledger, logger *slog.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if code, ok := NormalizeCurrency(cfg.BaseCurrency); ok {
		cfg.BaseCurrency = code
	} else {
		cfg.BaseCurrency = "USD"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, store: store, ledger: ledger, logger: logger}
}

// Ledger returns the ledger the service records into.
func (s *Service) Ledger() Ledger {
	return s.ledger
}

// Normalized is everything the pure part of the pipeline learned about one
// input. Fields are filled as far as the pipeline got.
type Normalized struct {
	File     *RawFile
	Grid     *RawGrid
	Mapping  *Mapping
	Assembly Assembly
}

// Normalize runs detection, loading, mapping and assembly on one input.
// It performs no I/O. A file-fatal failure is returned as a *StageError
// together with whatever was learned before it.
func (s *Service) Normalize(name string, data []byte) (*Normalized, error) {
	res := &Normalized{}

	f, err := Detect(name, data, DetectOptions{
		LegacyEncoding: s.cfg.LegacyEncoding,
		MaxFileSize:    s.cfg.MaxFileSize,
	})
	if err != nil {
		return res, err
	}
	res.File = f

	g, err := LoadGrid(f, LoadOptions{SheetName: s.cfg.SheetName, SniffLines: s.cfg.SniffLines})
	if err != nil {
		return res, err
	}
	res.Grid = g

	m, err := MapSchema(g, s.cfg.Rules, MapOptions{
		FuzzyThreshold:   s.cfg.FuzzyThreshold,
		HeaderSearchRows: s.cfg.HeaderSearchRows,
		Pivot:            s.cfg.Pivot,
	})
	if err != nil {
		return res, err
	}
	res.Mapping = m

	res.Assembly = AssembleRecords(g, m, AssembleOptions{
		BaseCurrency: s.cfg.BaseCurrency,
		SourceFile:   name,
	})
	if len(res.Assembly.Records) == 0 {
		return res, stageErr(StageAssemble, KindNoUsableRows,
			"%d of %d rows skipped", len(res.Assembly.RowErrors), res.Assembly.TotalRows)
	}
	return res, nil
}

// ProcessFile takes one input through the ledger check, the pipeline, output
// writing, the ledger append and archival.
//
// A returned error means infrastructure failed (ledger or storage): the
// outcome is StatusFailed and the input is left where it was so a later run
// can pick it up. Normalization failures are not errors; they produce a
// quarantined outcome.
func (s *Service) ProcessFile(ctx context.Context, in InputFile) (ProcessingOutcome, error) {
	start := time.Now()
	fp := Fingerprint(in.Data)
	out := ProcessingOutcome{FileName: in.Name, Fingerprint: fp}
	logger := logging.Enrich(ctx, s.logger).With("file", in.Name, "fingerprint", shortFingerprint(fp))

	fail := func(err error) (ProcessingOutcome, error) {
		out.Status = StatusFailed
		out.Detail = err.Error()
		logger.Error("file processing failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return out, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	prior, found, err := s.ledger.Lookup(ctx, fp)
	if err != nil {
		return fail(fmt.Errorf("ledger lookup: %w", err))
	}
	if found {
		return s.resolveDuplicate(ctx, in, out, prior, false, logger)
	}

	res, perr := s.Normalize(in.Name, in.Data)
	describe(&out, res)

	now := s.cfg.Now()
	entry := LedgerEntry{Fingerprint: fp, OriginalFileName: in.Name, ProcessedAt: now}

	if perr == nil {
		var buf bytes.Buffer
		if err := WriteCanonical(&buf, res.Assembly.Records); err != nil {
			return fail(fmt.Errorf("render output: %w", err))
		}
		path, err := s.store.WriteOutput(ctx, OutputName(in.Name), buf.Bytes())
		if err != nil {
			return fail(fmt.Errorf("storage: write output: %w", err))
		}
		out.Status = StatusNormalized
		out.OutputPath = path
		entry.Status = StatusNormalized
		entry.OutputPath = path
	} else {
		kind, ok := FailureKindOf(perr)
		if !ok {
			return fail(perr)
		}
		out.Status = StatusQuarantined
		out.QuarantineReason = kind
		out.Detail = perr.Error()
		entry.Status = StatusQuarantined
		entry.Reason = kind
	}

	stored, inserted, err := s.ledger.Append(ctx, entry)
	if err != nil {
		s.discardOutput(ctx, out.OutputPath, "", logger)
		return fail(fmt.Errorf("ledger append: %w", err))
	}
	if !inserted {
		// A concurrent run recorded this content first; its result stands.
		s.discardOutput(ctx, out.OutputPath, stored.OutputPath, logger)
		logger.Info("lost ledger race", "winner_file", stored.OriginalFileName)
		return s.resolveDuplicate(ctx, in, ProcessingOutcome{FileName: in.Name, Fingerprint: fp}, stored, true, logger)
	}

	kind := ArchiveProcessed
	if out.Status == StatusQuarantined {
		kind = ArchiveQuarantined
	}
	archived, err := s.archive(ctx, in.Name, kind, now, noteFor(out, res, perr, now), logger)
	switch {
	case errors.Is(err, ErrInputNotFound):
		logger.Warn("input moved by a concurrent run before archival")
	case err != nil:
		return fail(err)
	}
	out.ArchivePath = archived

	logger.Info("file processed",
		"status", out.Status,
		"reason", out.QuarantineReason,
		"encoding", out.Encoding,
		"encoding_confidence", encodingConfidence(res),
		"delimiter", out.Delimiter,
		"sheet", out.Sheet,
		"rule", out.Rule,
		"rows", out.TotalRowCount,
		"records", out.RecordCount,
		"row_errors", out.RowErrorCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// resolveDuplicate handles content the ledger already knows. The input is
// moved to the duplicate archive unless this call just lost the ledger race
// for the very same file, in which case the winning run owns the move.
func (s *Service) resolveDuplicate(ctx context.Context, in InputFile, out ProcessingOutcome, prior LedgerEntry, lostRace bool, logger *slog.Logger) (ProcessingOutcome, error) {
	out.Status = StatusAlreadyProcessed
	out.OutputPath = prior.OutputPath
	out.QuarantineReason = prior.Reason
	out.Detail = fmt.Sprintf("content already processed as %q at %s (%s)",
		prior.OriginalFileName, prior.ProcessedAt.UTC().Format(time.RFC3339), prior.Status)

	now := s.cfg.Now()
	if lostRace && prior.OriginalFileName == in.Name {
		logger.Info("file already processed by a concurrent run")
		return out, nil
	}

	note := ArchiveNote{
		FileName:    in.Name,
		Fingerprint: out.Fingerprint,
		Status:      StatusAlreadyProcessed,
		ArchivedAt:  now,
		Detail:      out.Detail,
		OutputPath:  prior.OutputPath,
	}
	archived, err := s.archive(ctx, in.Name, ArchiveDuplicate, now, note, logger)
	if errors.Is(err, ErrInputNotFound) {
		logger.Info("duplicate input already moved by a concurrent run")
		return out, nil
	}
	if err != nil {
		out.Status = StatusFailed
		out.Detail = err.Error()
		logger.Error("archiving duplicate failed", "error", err)
		return out, err
	}
	out.ArchivePath = archived
	logger.Info("file already processed", "original_file", prior.OriginalFileName)
	return out, nil
}

// archive moves the input and writes its companion note. A failed note is
// logged but does not fail the file: the ledger holds the outcome too.
func (s *Service) archive(ctx context.Context, name string, kind ArchiveKind, at time.Time, note ArchiveNote, logger *slog.Logger) (string, error) {
	archivedName := ArchiveName(kind, at, name)
	archived, err := s.store.ArchiveInput(ctx, name, archivedName)
	if err != nil {
		return "", fmt.Errorf("storage: archive input: %w", err)
	}

	data, err := note.Marshal()
	if err == nil {
		_, err = s.store.WriteArchiveNote(ctx, NoteName(archivedName), data)
	}
	if err != nil {
		logger.Warn("archive note not written", "archive", archivedName, "error", err)
	}
	return archived, nil
}

// discardOutput removes an output written by this call, unless it is the
// same object the ledger points at.
func (s *Service) discardOutput(ctx context.Context, path, keep string, logger *slog.Logger) {
	if path == "" || path == keep {
		return
	}
	if err := s.store.RemoveOutput(ctx, path); err != nil {
		logger.Warn("orphaned output not removed", "output", path, "error", err)
	}
}

func describe(out *ProcessingOutcome, res *Normalized) {
	if res == nil {
		return
	}
	if f := res.File; f != nil {
		out.Encoding = f.Encoding
	}
	if g := res.Grid; g != nil {
		out.Delimiter = delimiterName(g.Delimiter)
		out.Sheet = g.Sheet
	}
	if m := res.Mapping; m != nil {
		out.Rule = m.Rule
	}
	a := res.Assembly
	out.TotalRowCount = a.TotalRows
	out.RecordCount = len(a.Records)
	out.RowErrorCount = len(a.RowErrors)
	out.RowErrors = a.RowErrors
}

func encodingConfidence(res *Normalized) float64 {
	if res == nil || res.File == nil {
		return 0
	}
	return res.File.EncodingConfidence
}

func noteFor(out ProcessingOutcome, res *Normalized, perr error, at time.Time) ArchiveNote {
	note := ArchiveNote{
		FileName:           out.FileName,
		Fingerprint:        out.Fingerprint,
		Status:             out.Status,
		ArchivedAt:         at,
		Reason:             out.QuarantineReason,
		Detail:             out.Detail,
		Encoding:           out.Encoding,
		EncodingConfidence: encodingConfidence(res),
		Delimiter:          out.Delimiter,
		Sheet:              out.Sheet,
		Rule:               out.Rule,
		OutputPath:         out.OutputPath,
		TotalRows:          out.TotalRowCount,
		RecordCount:        out.RecordCount,
		RowErrorCount:      out.RowErrorCount,
		RowErrors:          out.RowErrors,
	}
	if res != nil && res.Mapping != nil {
		note.Mapping = res.Mapping.String()
	}
	if res != nil && out.Status == StatusNormalized {
		note.Counterparties = Counterparties(res.Assembly.Records, MaxNoteCounterparties)
	}
	if perr != nil {
		msg := MapError(perr)
		note.Code, note.Message, note.Action = msg.Code, msg.Message, msg.Action
	}
	return note
}

// RunOnce discovers every file in the input location and processes them as
// one batch. Only a failure to list the input location is returned as an
// error; per-file failures are reported in the result.
func (s *Service) RunOnce(ctx context.Context) (BatchResult, error) {
	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.ContextWithRunID(ctx, runID)
	}
	logger := logging.Enrich(ctx, s.logger)

	names, err := s.store.ListInputs(ctx)
	if err != nil {
		return BatchResult{RunID: runID}, fmt.Errorf("storage: list inputs: %w", err)
	}
	logger.Info("run started", "files", len(names), "trigger", TriggerFromContext(ctx))

	var (
		inputs   []InputFile
		readFail []ProcessingOutcome
		readErrs []string
	)
	for _, name := range names {
		data, err := s.store.ReadInput(ctx, name)
		if err != nil {
			logger.Error("input not readable", "file", name, "error", err)
			readFail = append(readFail, ProcessingOutcome{FileName: name, Status: StatusFailed, Detail: err.Error()})
			readErrs = append(readErrs, fmt.Sprintf("%s: storage: read input: %v", name, err))
			continue
		}
		inputs = append(inputs, InputFile{Name: name, Data: data})
	}

	result := s.ProcessBatch(ctx, inputs)
	result.Outcomes = append(result.Outcomes, readFail...)
	result.Errors = append(result.Errors, readErrs...)

	logger.Info("run finished",
		"normalized", result.Count(StatusNormalized),
		"quarantined", result.Count(StatusQuarantined),
		"already_processed", result.Count(StatusAlreadyProcessed),
		"failed", result.Count(StatusFailed),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	)
	return result, nil
}
