// Package azure implements the cloud adapter on the Azure Resource Manager
// REST API, authenticated with an azidentity client secret credential.
package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const (
	DefaultBaseURL = "https://management.azure.com"

	computeAPIVersion  = "2023-03-01"
	snapshotAPIVersion = "2023-04-02"
	metricsAPIVersion  = "2018-01-01"
	managementScope    = "https://management.azure.com/.default"
)

type Config struct {
	SubscriptionID string
	TenantID       string
	ClientID       string
	ClientSecret   string
	BaseURL        string
	Timeout        time.Duration
	// Token overrides the azidentity credential.
	Token cloud.TokenFunc
}

// Adapter addresses VMs by name inside Target.ResourceGroup.
type Adapter struct {
	cfg  Config
	rest *cloud.RESTClient
}

var _ cloud.Adapter = (*Adapter)(nil)

func New(cfg Config) (*Adapter, error) {
	if cfg.SubscriptionID == "" || cfg.TenantID == "" {
		return nil, cloud.ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	token := cfg.Token
	if token == nil {
		cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure credential: %w", err)
		}
		token = func(ctx context.Context) (string, error) {
			tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{managementScope}})
			if err != nil {
				return "", err
			}
			return tok.Token, nil
		}
	}

	return &Adapter{cfg: cfg, rest: cloud.NewRESTClient(models.ProviderAzure, cfg.Timeout, token)}, nil
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderAzure
}

func (a *Adapter) subscriptionURL() string {
	return a.cfg.BaseURL + "/subscriptions/" + a.cfg.SubscriptionID
}

func (a *Adapter) vmURL(t cloud.Target) string {
	return fmt.Sprintf("%s/resourceGroups/%s/providers/Microsoft.Compute/virtualMachines/%s",
		a.subscriptionURL(), url.PathEscape(t.ResourceGroup), url.PathEscape(t.InstanceID))
}

func (a *Adapter) snapshotURL(resourceGroup, name string) string {
	return fmt.Sprintf("%s/resourceGroups/%s/providers/Microsoft.Compute/snapshots/%s?api-version=%s",
		a.subscriptionURL(), url.PathEscape(resourceGroup), url.PathEscape(name), snapshotAPIVersion)
}

type managedDisk struct {
	ID string `json:"id"`
}

type virtualMachine struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Properties struct {
		HardwareProfile struct {
			VMSize string `json:"vmSize"`
		} `json:"hardwareProfile"`
		StorageProfile struct {
			OSDisk struct {
				ManagedDisk *managedDisk `json:"managedDisk"`
			} `json:"osDisk"`
			DataDisks []struct {
				ManagedDisk *managedDisk `json:"managedDisk"`
			} `json:"dataDisks"`
		} `json:"storageProfile"`
	} `json:"properties"`
}

func (vm virtualMachine) diskIDs() []string {
	var out []string
	if d := vm.Properties.StorageProfile.OSDisk.ManagedDisk; d != nil && d.ID != "" {
		out = append(out, d.ID)
	}
	for _, dd := range vm.Properties.StorageProfile.DataDisks {
		if dd.ManagedDisk != nil && dd.ManagedDisk.ID != "" {
			out = append(out, dd.ManagedDisk.ID)
		}
	}
	return out
}

func (a *Adapter) ListInstances(ctx context.Context, region string) ([]cloud.Instance, error) {
	next := a.subscriptionURL() + "/providers/Microsoft.Compute/virtualMachines?api-version=" + computeAPIVersion

	var out []cloud.Instance
	for next != "" {
		var page struct {
			Value    []virtualMachine `json:"value"`
			NextLink string           `json:"nextLink"`
		}
		if err := a.rest.Do(ctx, "list_instances", http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, vm := range page.Value {
			if region != "" && !strings.EqualFold(vm.Location, region) {
				continue
			}
			out = append(out, cloud.Instance{
				InstanceID:    vm.Name,
				Name:          vm.Name,
				Region:        vm.Location,
				ResourceGroup: resourceGroupOf(vm.ID),
				InstanceType:  vm.Properties.HardwareProfile.VMSize,
				State:         models.VMStateUnknown,
				VolumeIDs:     vm.diskIDs(),
			})
		}
		next = page.NextLink
	}
	return out, nil
}

func (a *Adapter) GetState(ctx context.Context, t cloud.Target) (models.VMState, error) {
	var view struct {
		Statuses []struct {
			Code string `json:"code"`
		} `json:"statuses"`
	}
	u := a.vmURL(t) + "/instanceView?api-version=" + computeAPIVersion
	if err := a.rest.Do(ctx, "get_state", http.MethodGet, u, nil, &view); err != nil {
		return models.VMStateUnknown, err
	}
	for _, s := range view.Statuses {
		if strings.HasPrefix(s.Code, "PowerState/") {
			return mapPowerState(strings.TrimPrefix(s.Code, "PowerState/")), nil
		}
	}
	return models.VMStateUnknown, nil
}

func (a *Adapter) action(ctx context.Context, op, verb string, t cloud.Target) error {
	u := a.vmURL(t) + "/" + verb + "?api-version=" + computeAPIVersion
	return a.rest.Do(ctx, op, http.MethodPost, u, nil, nil)
}

func (a *Adapter) Start(ctx context.Context, t cloud.Target) error {
	return a.action(ctx, "start", "start", t)
}

func (a *Adapter) Stop(ctx context.Context, t cloud.Target) error {
	return a.action(ctx, "stop", "powerOff", t)
}

func (a *Adapter) Reboot(ctx context.Context, t cloud.Target) error {
	return a.action(ctx, "reboot", "restart", t)
}

func (a *Adapter) ListVolumes(ctx context.Context, t cloud.Target) ([]string, error) {
	var vm virtualMachine
	if err := a.rest.Do(ctx, "list_volumes", http.MethodGet, a.vmURL(t)+"?api-version="+computeAPIVersion, nil, &vm); err != nil {
		return nil, err
	}
	return vm.diskIDs(), nil
}

type snapshotResource struct {
	Name       string            `json:"name,omitempty"`
	Location   string            `json:"location"`
	Tags       map[string]string `json:"tags,omitempty"`
	Properties struct {
		CreationData struct {
			CreateOption     string `json:"createOption"`
			SourceResourceID string `json:"sourceResourceId"`
		} `json:"creationData"`
		DiskSizeGB        *int   `json:"diskSizeGB,omitempty"`
		ProvisioningState string `json:"provisioningState,omitempty"`
	} `json:"properties"`
}

func (s snapshotResource) ref(name string) *cloud.SnapshotRef {
	return &cloud.SnapshotRef{
		SnapshotID: name,
		VolumeID:   s.Properties.CreationData.SourceResourceID,
		Status:     mapProvisioningState(s.Properties.ProvisioningState),
		SizeGB:     s.Properties.DiskSizeGB,
	}
}

// CreateSnapshot copies the managed disk volumeID into a snapshot named name.
// The snapshot name doubles as its id within the resource group.
func (a *Adapter) CreateSnapshot(ctx context.Context, t cloud.Target, volumeID, name, description string) (*cloud.SnapshotRef, error) {
	var body snapshotResource
	body.Location = t.Region
	body.Tags = map[string]string{"description": description, "instance": t.InstanceID}
	body.Properties.CreationData.CreateOption = "Copy"
	body.Properties.CreationData.SourceResourceID = volumeID

	var out snapshotResource
	if err := a.rest.Do(ctx, "create_snapshot", http.MethodPut, a.snapshotURL(t.ResourceGroup, name), body, &out); err != nil {
		return nil, err
	}
	ref := out.ref(name)
	if ref.VolumeID == "" {
		ref.VolumeID = volumeID
	}
	return ref, nil
}

func (a *Adapter) SnapshotStatus(ctx context.Context, t cloud.Target, snapshotID string) (*cloud.SnapshotRef, error) {
	var out snapshotResource
	if err := a.rest.Do(ctx, "snapshot_status", http.MethodGet, a.snapshotURL(t.ResourceGroup, snapshotID), nil, &out); err != nil {
		return nil, err
	}
	return out.ref(snapshotID), nil
}

func (a *Adapter) DeleteSnapshot(ctx context.Context, t cloud.Target, snapshotID string) error {
	return a.rest.Do(ctx, "delete_snapshot", http.MethodDelete, a.snapshotURL(t.ResourceGroup, snapshotID), nil, nil)
}

var metricFields = map[string]func(s *models.MetricSample, v float64){
	"Percentage CPU":    func(s *models.MetricSample, v float64) { s.CPUUtilization = models.Float(v) },
	"Network In Total":  func(s *models.MetricSample, v float64) { s.NetworkIn = models.Float(v) },
	"Network Out Total": func(s *models.MetricSample, v float64) { s.NetworkOut = models.Float(v) },
	"Disk Read Bytes":   func(s *models.MetricSample, v float64) { s.DiskReadBytes = models.Float(v) },
	"Disk Write Bytes":  func(s *models.MetricSample, v float64) { s.DiskWriteBytes = models.Float(v) },
}

func (a *Adapter) GetMetrics(ctx context.Context, t cloud.Target, window time.Duration) ([]*models.MetricSample, error) {
	end := time.Now().UTC()
	start := end.Add(-window)

	q := url.Values{}
	q.Set("api-version", metricsAPIVersion)
	q.Set("metricnames", "Percentage CPU,Network In Total,Network Out Total,Disk Read Bytes,Disk Write Bytes")
	q.Set("timespan", start.Format(time.RFC3339)+"/"+end.Format(time.RFC3339))
	q.Set("interval", "PT5M")
	q.Set("aggregation", "Average")

	var resp struct {
		Value []struct {
			Name struct {
				Value string `json:"value"`
			} `json:"name"`
			Timeseries []struct {
				Data []struct {
					TimeStamp time.Time `json:"timeStamp"`
					Average   *float64  `json:"average"`
				} `json:"data"`
			} `json:"timeseries"`
		} `json:"value"`
	}
	u := a.vmURL(t) + "/providers/Microsoft.Insights/metrics?" + q.Encode()
	if err := a.rest.Do(ctx, "get_metrics", http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}

	set := cloud.NewSampleSet(models.ProviderAzure, t.InstanceID)
	for _, metric := range resp.Value {
		assign, ok := metricFields[metric.Name.Value]
		if !ok {
			continue
		}
		for _, series := range metric.Timeseries {
			for _, point := range series.Data {
				if point.Average != nil {
					assign(set.At(point.TimeStamp), *point.Average)
				}
			}
		}
	}
	return set.Samples(), nil
}

func (a *Adapter) Close() {
	a.rest.Close()
}

// resourceGroupOf extracts the resource group segment from an ARM resource id.
func resourceGroupOf(id string) string {
	parts := strings.Split(id, "/")
	for i := 0; i+1 < len(parts); i++ {
		if strings.EqualFold(parts[i], "resourceGroups") {
			return parts[i+1]
		}
	}
	return ""
}

func mapPowerState(code string) models.VMState {
	switch code {
	case "running":
		return models.VMStateRunning
	case "stopped", "deallocated":
		return models.VMStateStopped
	case "starting":
		return models.VMStatePending
	case "stopping", "deallocating":
		return models.VMStateStopping
	}
	return models.VMStateUnknown
}

func mapProvisioningState(state string) models.SnapshotStatus {
	switch state {
	case "Succeeded":
		return models.SnapshotCompleted
	case "Failed", "Canceled":
		return models.SnapshotError
	}
	return models.SnapshotPending
}
