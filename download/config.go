package download

import (
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// Config holds the tuning knobs of a Manager.
// Zero durations and counts fall back to sane values only through
// DefaultConfig; a zero Config is not usable on its own.
type Config struct {
	// Number of peer addresses requested from a tracker in one announce.
	TrackerNumWant int `yaml:"tracker_numwant"`
	// Smallest wait between two announces to the same tracker. A shorter
	// interval in a tracker response is raised to this value.
	TrackerMinAnnounceInterval time.Duration `yaml:"tracker_min_announce_interval"`
	// Time given to the stopped-event announces during shutdown.
	TrackerStoppedEventTimeout time.Duration `yaml:"tracker_stopped_event_timeout"`
	// Total time to wait for one HTTP announce response.
	HTTPTrackerTimeout time.Duration `yaml:"http_tracker_timeout"`
	// Identity token sent to HTTP trackers. Opaque to the tracker, kept
	// constant across address changes.
	TrackerKey string `yaml:"tracker_key"`
	// Address sent to HTTP trackers as the "ip" parameter.
	PublicIP string `yaml:"public_ip"`
	// Download speed limit in KiB/s. Zero means unlimited.
	SpeedLimitDownload int64 `yaml:"speed_limit_download"`
	// Upload speed limit in KiB/s. Zero means unlimited.
	SpeedLimitUpload int64 `yaml:"speed_limit_upload"`
}

// DefaultConfig for a new Manager.
var DefaultConfig = Config{
	TrackerNumWant:             50,
	TrackerMinAnnounceInterval: time.Minute,
	TrackerStoppedEventTimeout: 5 * time.Second,
	HTTPTrackerTimeout:         10 * time.Second,
}

// LoadConfig reads a YAML file over the defaults.
// A missing file yields the defaults unchanged.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	filename, err := homedir.Expand(filename)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
