package teleop

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/roverlink/teleop/common/log"
	"github.com/roverlink/teleop/common/utils"
	"github.com/roverlink/teleop/failsafe"
	"github.com/roverlink/teleop/model"
)

// TemperatureSource names the hwmon files holding millidegree readings.
type TemperatureSource struct {
	BCPUPath   string
	GPUPath    string
	TBoardPath string
}

func DefaultTemperatureSource() TemperatureSource {
	return TemperatureSource{
		BCPUPath:   model.DefaultBCPUTempPath,
		GPUPath:    model.DefaultGPUTempPath,
		TBoardPath: model.DefaultTBoardTempPath,
	}
}

func (s TemperatureSource) Read() (model.Temperature, error) {
	var ret model.Temperature
	var err error
	if ret.BCPUTemp, err = readMilliCelsius(s.BCPUPath); err != nil {
		return ret, err
	}
	if ret.GPUTemp, err = readMilliCelsius(s.GPUPath); err != nil {
		return ret, err
	}
	if ret.TBoardTemp, err = readMilliCelsius(s.TBoardPath); err != nil {
		return ret, err
	}
	return ret, nil
}

func readMilliCelsius(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, errors.Wrapf(err, "parse temperature in %s", path)
	}
	return value, nil
}

// RunStatusTask publishes the kill state every interval until ctx ends.
func RunStatusTask(ctx context.Context, controller *failsafe.Controller, interval time.Duration) {
	utils.TimedTaskWithInterval(ctx, interval, func(ctx context.Context) {
		if err := controller.PublishStatus(ctx); err != nil {
			log.G(ctx).WithError(err).Error("Failed to publish kill switch status")
		}
	})
}

// RunTemperatureTask publishes temperatures every interval. It returns as
// soon as a reading file is missing.
func RunTemperatureTask(ctx context.Context, controller *failsafe.Controller, source TemperatureSource, interval time.Duration) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	utils.TimedTaskWithInterval(taskCtx, interval, func(ctx context.Context) {
		temps, err := source.Read()
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				log.G(ctx).WithError(err).Warn("Temperature files not found, temperature reporting stopped")
				cancel()
				return
			}
			log.G(ctx).WithError(err).Error("Failed to read temperatures")
			return
		}
		if err = controller.PublishTelemetry(ctx, model.TemperatureChannel, temps); err != nil {
			log.G(ctx).WithError(err).Error("Failed to publish temperatures")
		}
	})
}
