package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"

	"motorlab/core"
)

// Config describes the rig: drivetrain, wiring, host link and simulator.
type Config struct {
	Sim      bool   `yaml:"sim" env:"MOTORLAB_SIM"`
	Serial   string `yaml:"serial" env:"MOTORLAB_SERIAL"`
	Baud     int    `yaml:"baud" env:"MOTORLAB_BAUD"`
	Settings string `yaml:"settings" env:"MOTORLAB_SETTINGS"`
	LogLevel string `yaml:"log_level" env:"MOTORLAB_LOG_LEVEL"`

	ReportIntervalMS uint32  `yaml:"report_interval_ms"`
	MaxTrialSeconds  float64 `yaml:"max_trial_seconds"`

	Drivetrain DrivetrainConfig `yaml:"drivetrain"`
	Battery    BatteryConfig    `yaml:"battery"`
	Pins       PinConfig        `yaml:"pins"`
	Plant      PlantConfig      `yaml:"plant"`
}

// DrivetrainConfig describes the motor, gearbox and encoder
type DrivetrainConfig struct {
	GearRatio       float32 `yaml:"gear_ratio"`
	EncoderPulses   int     `yaml:"encoder_pulses"`
	EncoderPolarity int8    `yaml:"encoder_polarity"`
	MotorPolarity   int8    `yaml:"motor_polarity"`
	XORClock        bool    `yaml:"xor_clock"`
	PWMPeriodUS     uint32  `yaml:"pwm_period_us"`
	MaxMotorVolts   float32 `yaml:"max_motor_volts"`
}

// BatteryConfig describes the battery divider. FixedVolts skips the ADC.
type BatteryConfig struct {
	R1          float32 `yaml:"r1"`
	R2          float32 `yaml:"r2"`
	ReferenceMV uint32  `yaml:"reference_mv"`
	Channel     uint8   `yaml:"channel"`
	Window      int     `yaml:"window"`
	FixedVolts  float32 `yaml:"fixed_volts"`
}

// DividerRatio returns (R1+R2)/R2
func (b BatteryConfig) DividerRatio() float32 {
	return (b.R1 + b.R2) / b.R2
}

// PinConfig names the board pins used on Linux hosts
type PinConfig struct {
	EncoderA string `yaml:"encoder_a"`
	EncoderB string `yaml:"encoder_b"`
	Dir      string `yaml:"dir"`
	PWM      string `yaml:"pwm"`
}

// PlantConfig parameterises the simulated motor
type PlantConfig struct {
	Km            float32 `yaml:"km"`
	Tm            float32 `yaml:"tm"`
	FrictionVolts float32 `yaml:"friction_volts"`
	BatteryVolts  float32 `yaml:"battery_volts"`
	Substeps      int     `yaml:"substeps"`
	Realtime      bool    `yaml:"realtime"`
}

// LoadConfig parses YAML, applies defaults and then environment overrides
func LoadConfig(yamlData []byte) (*Config, error) {
	var config Config

	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&config)

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads a config file. An empty path gives the defaults.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return LoadConfig(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadConfig(data)
}

// Validate checks values defaults cannot repair
func (c *Config) Validate() error {
	if c.Drivetrain.GearRatio < 0 {
		return fmt.Errorf("gear_ratio must be positive, got %g", c.Drivetrain.GearRatio)
	}
	if c.Drivetrain.EncoderPulses < 0 {
		return fmt.Errorf("encoder_pulses must be positive, got %d", c.Drivetrain.EncoderPulses)
	}
	if p := c.Drivetrain.EncoderPolarity; p != 1 && p != -1 {
		return fmt.Errorf("encoder_polarity must be 1 or -1, got %d", p)
	}
	if p := c.Drivetrain.MotorPolarity; p != 1 && p != -1 {
		return fmt.Errorf("motor_polarity must be 1 or -1, got %d", p)
	}
	if c.Battery.R2 <= 0 || c.Battery.R1 < 0 {
		return fmt.Errorf("battery divider r1=%g r2=%g", c.Battery.R1, c.Battery.R2)
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Baud == 0 {
		config.Baud = 115200
	}
	if config.Settings == "" {
		config.Settings = "motorlab.db"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.ReportIntervalMS == 0 {
		config.ReportIntervalMS = 10
	}
	if config.MaxTrialSeconds == 0 {
		config.MaxTrialSeconds = 10
	}

	d := &config.Drivetrain
	if d.GearRatio == 0 {
		d.GearRatio = core.DefaultGearRatio
	}
	if d.EncoderPulses == 0 {
		d.EncoderPulses = core.DefaultEncoderPulses
	}
	if d.EncoderPolarity == 0 {
		d.EncoderPolarity = -1
	}
	if d.MotorPolarity == 0 {
		d.MotorPolarity = -1
	}
	if d.PWMPeriodUS == 0 {
		d.PWMPeriodUS = core.DefaultPWMPeriodUS
	}
	if d.MaxMotorVolts == 0 {
		d.MaxMotorVolts = 6
	}

	b := &config.Battery
	if b.R1 == 0 && b.R2 == 0 {
		b.R1, b.R2 = 20000, 10000
	}
	if b.ReferenceMV == 0 {
		b.ReferenceMV = 3300
	}
	if b.Window == 0 {
		b.Window = core.DefaultBatteryWindow
	}

	p := &config.Pins
	if p.EncoderA == "" {
		p.EncoderA = "GPIO17"
	}
	if p.EncoderB == "" {
		p.EncoderB = "GPIO27"
	}
	if p.Dir == "" {
		p.Dir = "GPIO22"
	}
	if p.PWM == "" {
		p.PWM = "GPIO18"
	}

	pl := &config.Plant
	if pl.Km == 0 {
		pl.Km = core.DefaultKm
	}
	if pl.Tm == 0 {
		pl.Tm = core.DefaultTm
	}
	if pl.FrictionVolts == 0 {
		pl.FrictionVolts = core.DefaultBiasFF
	}
	if pl.BatteryVolts == 0 {
		pl.BatteryVolts = 8
	}
	if pl.Substeps == 0 {
		pl.Substeps = 40
	}
}

// Calibration returns the default calibration for this drivetrain
func (c *Config) Calibration() core.Calibration {
	return core.DefaultCalibration(c.Drivetrain.GearRatio, c.Drivetrain.EncoderPulses)
}

// ReportTicks returns the telemetry interval in control ticks
func (c *Config) ReportTicks() uint32 {
	return core.MSToTicks(c.ReportIntervalMS)
}
