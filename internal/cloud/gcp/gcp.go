// Package gcp implements the cloud adapter on the Compute Engine and Cloud
// Monitoring REST APIs, authenticated with a service account key.
package gcp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const (
	DefaultComputeURL    = "https://compute.googleapis.com/compute/v1"
	DefaultMonitoringURL = "https://monitoring.googleapis.com/v3"

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

type Config struct {
	ProjectID     string
	KeyFile       string
	ComputeURL    string
	MonitoringURL string
	Timeout       time.Duration
	// Token overrides the service account token source.
	Token cloud.TokenFunc
}

// Adapter addresses instances by name inside Target.Zone.
type Adapter struct {
	cfg  Config
	rest *cloud.RESTClient
}

var _ cloud.Adapter = (*Adapter)(nil)

func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.ProjectID == "" || (cfg.KeyFile == "" && cfg.Token == nil) {
		return nil, cloud.ErrNotConfigured
	}
	if cfg.ComputeURL == "" {
		cfg.ComputeURL = DefaultComputeURL
	}
	if cfg.MonitoringURL == "" {
		cfg.MonitoringURL = DefaultMonitoringURL
	}
	cfg.ComputeURL = strings.TrimRight(cfg.ComputeURL, "/")
	cfg.MonitoringURL = strings.TrimRight(cfg.MonitoringURL, "/")

	token := cfg.Token
	if token == nil {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read gcp key file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, key, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse gcp credentials: %w", err)
		}
		token = func(ctx context.Context) (string, error) {
			tok, err := creds.TokenSource.Token()
			if err != nil {
				return "", err
			}
			return tok.AccessToken, nil
		}
	}

	return &Adapter{cfg: cfg, rest: cloud.NewRESTClient(models.ProviderGCP, cfg.Timeout, token)}, nil
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderGCP
}

func (a *Adapter) projectURL() string {
	return a.cfg.ComputeURL + "/projects/" + url.PathEscape(a.cfg.ProjectID)
}

func (a *Adapter) instanceURL(t cloud.Target) string {
	return fmt.Sprintf("%s/zones/%s/instances/%s", a.projectURL(), url.PathEscape(t.Zone), url.PathEscape(t.InstanceID))
}

func (a *Adapter) snapshotURL(name string) string {
	return a.projectURL() + "/global/snapshots/" + url.PathEscape(name)
}

type instance struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	MachineType string `json:"machineType"`
	Zone        string `json:"zone"`
	Disks       []struct {
		Source string `json:"source"`
	} `json:"disks"`
}

func (i instance) toInstance() cloud.Instance {
	zone := lastSegment(i.Zone)
	out := cloud.Instance{
		InstanceID:   i.Name,
		Name:         i.Name,
		Region:       regionOf(zone),
		Zone:         zone,
		InstanceType: lastSegment(i.MachineType),
		State:        mapStatus(i.Status),
	}
	for _, d := range i.Disks {
		if d.Source != "" {
			out.VolumeIDs = append(out.VolumeIDs, lastSegment(d.Source))
		}
	}
	return out
}

func (a *Adapter) ListInstances(ctx context.Context, region string) ([]cloud.Instance, error) {
	var out []cloud.Instance
	pageToken := ""
	for {
		u := a.projectURL() + "/aggregated/instances"
		if pageToken != "" {
			u += "?pageToken=" + url.QueryEscape(pageToken)
		}
		var page struct {
			Items map[string]struct {
				Instances []instance `json:"instances"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := a.rest.Do(ctx, "list_instances", http.MethodGet, u, nil, &page); err != nil {
			return nil, err
		}
		for _, scope := range page.Items {
			for _, inst := range scope.Instances {
				converted := inst.toInstance()
				if region == "" || converted.Region == region {
					out = append(out, converted)
				}
			}
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func (a *Adapter) get(ctx context.Context, op string, t cloud.Target) (*instance, error) {
	var inst instance
	if err := a.rest.Do(ctx, op, http.MethodGet, a.instanceURL(t), nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (a *Adapter) GetState(ctx context.Context, t cloud.Target) (models.VMState, error) {
	inst, err := a.get(ctx, "get_state", t)
	if err != nil {
		return models.VMStateUnknown, err
	}
	return mapStatus(inst.Status), nil
}

func (a *Adapter) Start(ctx context.Context, t cloud.Target) error {
	return a.rest.Do(ctx, "start", http.MethodPost, a.instanceURL(t)+"/start", nil, nil)
}

func (a *Adapter) Stop(ctx context.Context, t cloud.Target) error {
	return a.rest.Do(ctx, "stop", http.MethodPost, a.instanceURL(t)+"/stop", nil, nil)
}

func (a *Adapter) Reboot(ctx context.Context, t cloud.Target) error {
	return a.rest.Do(ctx, "reboot", http.MethodPost, a.instanceURL(t)+"/reset", nil, nil)
}

func (a *Adapter) ListVolumes(ctx context.Context, t cloud.Target) ([]string, error) {
	inst, err := a.get(ctx, "list_volumes", t)
	if err != nil {
		return nil, err
	}
	return inst.toInstance().VolumeIDs, nil
}

// CreateSnapshot starts a snapshot of the zonal disk volumeID. The snapshot
// name is its id; the returned status is pending until the operation finishes.
func (a *Adapter) CreateSnapshot(ctx context.Context, t cloud.Target, volumeID, name, description string) (*cloud.SnapshotRef, error) {
	u := fmt.Sprintf("%s/zones/%s/disks/%s/createSnapshot", a.projectURL(), url.PathEscape(t.Zone), url.PathEscape(volumeID))
	body := map[string]string{"name": name, "description": description}

	var op struct {
		Status string `json:"status"`
		Error  *struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"error"`
	}
	if err := a.rest.Do(ctx, "create_snapshot", http.MethodPost, u, body, &op); err != nil {
		return nil, err
	}

	ref := &cloud.SnapshotRef{SnapshotID: name, VolumeID: volumeID, Status: models.SnapshotPending}
	if op.Error != nil && len(op.Error.Errors) > 0 {
		ref.Status = models.SnapshotError
		ref.Message = op.Error.Errors[0].Message
	}
	return ref, nil
}

func (a *Adapter) SnapshotStatus(ctx context.Context, t cloud.Target, snapshotID string) (*cloud.SnapshotRef, error) {
	var snap struct {
		Status     string `json:"status"`
		DiskSizeGB string `json:"diskSizeGb"`
		SourceDisk string `json:"sourceDisk"`
	}
	if err := a.rest.Do(ctx, "snapshot_status", http.MethodGet, a.snapshotURL(snapshotID), nil, &snap); err != nil {
		return nil, err
	}

	ref := &cloud.SnapshotRef{
		SnapshotID: snapshotID,
		VolumeID:   lastSegment(snap.SourceDisk),
		Status:     mapSnapshotStatus(snap.Status),
	}
	if n, err := strconv.Atoi(snap.DiskSizeGB); err == nil {
		ref.SizeGB = &n
	}
	return ref, nil
}

func (a *Adapter) DeleteSnapshot(ctx context.Context, t cloud.Target, snapshotID string) error {
	return a.rest.Do(ctx, "delete_snapshot", http.MethodDelete, a.snapshotURL(snapshotID), nil, nil)
}

var metricTypes = []struct {
	metric string
	scale  float64
	set    func(s *models.MetricSample, v float64)
}{
	{"compute.googleapis.com/instance/cpu/utilization", 100, func(s *models.MetricSample, v float64) { s.CPUUtilization = models.Float(v) }},
	{"compute.googleapis.com/instance/network/received_bytes_count", 1, func(s *models.MetricSample, v float64) { s.NetworkIn = models.Float(v) }},
	{"compute.googleapis.com/instance/network/sent_bytes_count", 1, func(s *models.MetricSample, v float64) { s.NetworkOut = models.Float(v) }},
}

type typedValue struct {
	DoubleValue *float64 `json:"doubleValue"`
	Int64Value  *string  `json:"int64Value"`
}

func (v typedValue) float() (float64, bool) {
	if v.DoubleValue != nil {
		return *v.DoubleValue, true
	}
	if v.Int64Value != nil {
		n, err := strconv.ParseFloat(*v.Int64Value, 64)
		return n, err == nil
	}
	return 0, false
}

// GetMetrics reads one time series per metric type. CPU utilization is
// reported as a 0..1 fraction and scaled to a percentage.
func (a *Adapter) GetMetrics(ctx context.Context, t cloud.Target, window time.Duration) ([]*models.MetricSample, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	set := cloud.NewSampleSet(models.ProviderGCP, t.InstanceID)
	for _, mt := range metricTypes {
		q := url.Values{}
		q.Set("filter", fmt.Sprintf(`metric.type = "%s" AND metric.labels.instance_name = "%s"`, mt.metric, t.InstanceID))
		q.Set("interval.startTime", start.Format(time.RFC3339))
		q.Set("interval.endTime", end.Format(time.RFC3339))

		var resp struct {
			TimeSeries []struct {
				Points []struct {
					Interval struct {
						EndTime time.Time `json:"endTime"`
					} `json:"interval"`
					Value typedValue `json:"value"`
				} `json:"points"`
			} `json:"timeSeries"`
		}
		u := a.cfg.MonitoringURL + "/projects/" + url.PathEscape(a.cfg.ProjectID) + "/timeSeries?" + q.Encode()
		if err := a.rest.Do(ctx, "get_metrics", http.MethodGet, u, nil, &resp); err != nil {
			return nil, err
		}
		for _, series := range resp.TimeSeries {
			for _, p := range series.Points {
				if v, ok := p.Value.float(); ok {
					mt.set(set.At(p.Interval.EndTime), v*mt.scale)
				}
			}
		}
	}
	return set.Samples(), nil
}

func (a *Adapter) Close() {
	a.rest.Close()
}

// mapStatus maps Compute Engine instance status. TERMINATED is a stopped
// instance that can be started again, not a deleted one.
func mapStatus(status string) models.VMState {
	switch status {
	case "RUNNING":
		return models.VMStateRunning
	case "TERMINATED", "STOPPED", "SUSPENDED":
		return models.VMStateStopped
	case "PROVISIONING", "STAGING":
		return models.VMStatePending
	case "STOPPING", "SUSPENDING":
		return models.VMStateStopping
	}
	return models.VMStateUnknown
}

func mapSnapshotStatus(status string) models.SnapshotStatus {
	switch status {
	case "READY":
		return models.SnapshotCompleted
	case "FAILED":
		return models.SnapshotError
	}
	return models.SnapshotPending
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// regionOf strips the zone suffix: us-central1-a is in us-central1.
func regionOf(zone string) string {
	if i := strings.LastIndex(zone, "-"); i > 0 {
		return zone[:i]
	}
	return zone
}
