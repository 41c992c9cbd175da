package main

import (
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/pursuit/config"
	"github.com/pthm-cable/pursuit/telemetry"
)

// evalRow is one line of tune_log.csv.
type evalRow struct {
	Eval    int     `csv:"eval"`
	Fitness float64 `csv:"fitness"`

	PredatorMoveSpeed   float64 `csv:"predator_move_speed"`
	PredatorRotateSpeed float64 `csv:"predator_rotate_speed"`
	PreyMoveSpeed       float64 `csv:"prey_move_speed"`
	PreyRotateSpeed     float64 `csv:"prey_rotate_speed"`

	Episodes           int     `csv:"episodes"`
	CaptureRate        float64 `csv:"capture_rate"`
	StepsP50           float64 `csv:"steps_p50"`
	StepsMean          float64 `csv:"steps_mean"`
	SurvivalMean       float64 `csv:"survival_mean"`
	CapturesPerEpisode float64 `csv:"captures_per_episode"`
	PreyReturnMean     float64 `csv:"prey_return_mean"`
	PredatorReturnMean float64 `csv:"predator_return_mean"`
}

func newEvalRow(eval int, fitness float64, m config.MotionConfig, ws telemetry.WindowStats) evalRow {
	return evalRow{
		Eval:                eval,
		Fitness:             fitness,
		PredatorMoveSpeed:   m.PredatorMoveSpeed,
		PredatorRotateSpeed: m.PredatorRotateSpeed,
		PreyMoveSpeed:       m.PreyMoveSpeed,
		PreyRotateSpeed:     m.PreyRotateSpeed,
		Episodes:            ws.Episodes,
		CaptureRate:         ws.CaptureRate,
		StepsP50:            ws.StepsP50,
		StepsMean:           ws.StepsMean,
		SurvivalMean:        ws.SurvivalMean,
		CapturesPerEpisode:  ws.CapturesPerEpisode,
		PreyReturnMean:      ws.PreyReturnMean,
		PredatorReturnMean:  ws.PredatorReturnMean,
	}
}

// evalLog appends evaluation rows to a CSV file, writing the header once.
type evalLog struct {
	f             *os.File
	headerWritten bool
}

func createEvalLog(path string) (*evalLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &evalLog{f: f}, nil
}

func (l *evalLog) Append(row evalRow) error {
	rows := []evalRow{row}
	if !l.headerWritten {
		l.headerWritten = true
		return gocsv.Marshal(rows, l.f)
	}
	return gocsv.MarshalWithoutHeaders(rows, l.f)
}

func (l *evalLog) Close() error {
	return l.f.Close()
}
