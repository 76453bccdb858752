package pipeline

import (
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/jobs/runtime"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/logger"
	"github.com/neoalexandria/backend/internal/services"
)

const citationResolveBatch = 500

// CitationResolve matches unresolved citations against the library.
type CitationResolve struct {
	log       *logger.Logger
	citations *services.CitationService
}

func NewCitationResolve(log *logger.Logger, citations *services.CitationService) *CitationResolve {
	return &CitationResolve{log: log.With("pipeline", "citation_resolve"), citations: citations}
}

func (p *CitationResolve) Type() string { return types.JobCitationResolve }

func (p *CitationResolve) Run(rc *runtime.Context) error {
	dbc := dbctx.Context{Ctx: rc.Ctx}
	rc.Progress("resolve", 10, "matching unresolved citations")
	resolved, err := p.citations.ResolveBatch(dbc, citationResolveBatch)
	if err != nil {
		return err
	}
	rc.Succeed("resolve", map[string]any{"resolved": resolved})
	return nil
}

// ImportanceCompute reruns PageRank over the resolved citation graph.
type ImportanceCompute struct {
	log       *logger.Logger
	citations *services.CitationService
}

func NewImportanceCompute(log *logger.Logger, citations *services.CitationService) *ImportanceCompute {
	return &ImportanceCompute{log: log.With("pipeline", "importance_compute"), citations: citations}
}

func (p *ImportanceCompute) Type() string { return types.JobImportanceCompute }

func (p *ImportanceCompute) Run(rc *runtime.Context) error {
	dbc := dbctx.Context{Ctx: rc.Ctx}
	rc.Progress("pagerank", 10, "computing citation importance")
	updated, err := p.citations.ComputeImportance(dbc)
	if err != nil {
		return err
	}
	rc.Succeed("pagerank", map[string]any{"updated": updated})
	return nil
}

// Outlier fraction flagged per quality scan.
const outlierFraction = 0.05

// QualityScan runs either the outlier or the degradation sweep, chosen by the
// job payload.
type QualityScan struct {
	log     *logger.Logger
	quality *services.QualityService
}

func NewQualityScan(log *logger.Logger, quality *services.QualityService) *QualityScan {
	return &QualityScan{log: log.With("pipeline", "quality_scan"), quality: quality}
}

func (p *QualityScan) Type() string { return types.JobQualityScan }

func (p *QualityScan) Run(rc *runtime.Context) error {
	dbc := dbctx.Context{Ctx: rc.Ctx}
	scan := rc.PayloadString("scan")
	switch scan {
	case "outlier":
		rc.Progress("outlier", 10, "scanning for quality outliers")
		flagged, err := p.quality.DetectOutliers(dbc, outlierFraction)
		if err != nil {
			return err
		}
		rc.Succeed("outlier", map[string]any{"flagged": flagged})
	case "degradation":
		rc.Progress("degradation", 10, "scanning for quality degradation")
		flagged, err := p.quality.ScanDegradation(dbc)
		if err != nil {
			return err
		}
		rc.Succeed("degradation", map[string]any{"flagged": flagged})
	default:
		return apierr.Newf(apierr.KindValidation, "unknown quality scan %q", scan)
	}
	return nil
}
