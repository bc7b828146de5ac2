// Package aws implements the cloud adapter on EC2 and CloudWatch.
package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/OldStager01/cloud-vm-monitor/internal/cloud"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

const metricPeriod = 300

// EC2API is the subset of the EC2 client the adapter calls.
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	StartInstances(ctx context.Context, in *ec2.StartInstancesInput, opts ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, in *ec2.StopInstancesInput, opts ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	RebootInstances(ctx context.Context, in *ec2.RebootInstancesInput, opts ...func(*ec2.Options)) (*ec2.RebootInstancesOutput, error)
	DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, opts ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	CreateSnapshot(ctx context.Context, in *ec2.CreateSnapshotInput, opts ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	DescribeSnapshots(ctx context.Context, in *ec2.DescribeSnapshotsInput, opts ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DeleteSnapshot(ctx context.Context, in *ec2.DeleteSnapshotInput, opts ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

// CloudWatchAPI is the subset of the CloudWatch client the adapter calls.
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, in *cloudwatch.GetMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// ClientFactory builds the clients for one region.
type ClientFactory func(ctx context.Context, region string) (EC2API, CloudWatchAPI, error)

type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	DefaultRegion   string
	Timeout         time.Duration
}

type clients struct {
	ec2 EC2API
	cw  CloudWatchAPI
}

type Adapter struct {
	cfg     Config
	factory ClientFactory

	mu      sync.Mutex
	clients map[string]clients
}

var _ cloud.Adapter = (*Adapter)(nil)

// New returns an adapter using static credentials. It fails with
// cloud.ErrNotConfigured when the credentials are incomplete.
func New(cfg Config) (*Adapter, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, cloud.ErrNotConfigured
	}
	return NewWithFactory(cfg, staticFactory(cfg)), nil
}

func NewWithFactory(cfg Config, factory ClientFactory) *Adapter {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = "us-east-1"
	}
	return &Adapter{cfg: cfg, factory: factory, clients: make(map[string]clients)}
}

func staticFactory(cfg Config) ClientFactory {
	return func(ctx context.Context, region string) (EC2API, CloudWatchAPI, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return ec2.NewFromConfig(awsCfg), cloudwatch.NewFromConfig(awsCfg), nil
	}
}

func (a *Adapter) Provider() models.Provider {
	return models.ProviderAWS
}

func (a *Adapter) client(ctx context.Context, op, region string) (clients, error) {
	if region == "" {
		region = a.cfg.DefaultRegion
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[region]; ok {
		return c, nil
	}
	e, cw, err := a.factory(ctx, region)
	if err != nil {
		return clients{}, cloud.NewProviderError(models.ProviderAWS, op, err)
	}
	c := clients{ec2: e, cw: cw}
	a.clients[region] = c
	return c, nil
}

func (a *Adapter) fail(op string, err error) error {
	return cloud.NewProviderError(models.ProviderAWS, op, err)
}

func (a *Adapter) ListInstances(ctx context.Context, region string) ([]cloud.Instance, error) {
	c, err := a.client(ctx, "list_instances", region)
	if err != nil {
		return nil, err
	}
	if region == "" {
		region = a.cfg.DefaultRegion
	}

	var out []cloud.Instance
	paginator := ec2.NewDescribeInstancesPaginator(c.ec2, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, a.fail("list_instances", err)
		}
		for _, r := range page.Reservations {
			for _, inst := range r.Instances {
				out = append(out, toInstance(inst, region))
			}
		}
	}
	return out, nil
}

func (a *Adapter) describe(ctx context.Context, op string, t cloud.Target) (types.Instance, error) {
	c, err := a.client(ctx, op, t.Region)
	if err != nil {
		return types.Instance{}, err
	}
	resp, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{t.InstanceID}})
	if err != nil {
		return types.Instance{}, a.fail(op, err)
	}
	for _, r := range resp.Reservations {
		if len(r.Instances) > 0 {
			return r.Instances[0], nil
		}
	}
	return types.Instance{}, &cloud.ProviderError{
		Provider: models.ProviderAWS,
		Op:       op,
		Message:  fmt.Sprintf("instance %s not found", t.InstanceID),
		Err:      cloud.ErrNotFound,
	}
}

func (a *Adapter) GetState(ctx context.Context, t cloud.Target) (models.VMState, error) {
	inst, err := a.describe(ctx, "get_state", t)
	if err != nil {
		return models.VMStateUnknown, err
	}
	return mapState(inst.State), nil
}

func (a *Adapter) Start(ctx context.Context, t cloud.Target) error {
	c, err := a.client(ctx, "start", t.Region)
	if err != nil {
		return err
	}
	_, err = c.ec2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{t.InstanceID}})
	return a.fail("start", err)
}

func (a *Adapter) Stop(ctx context.Context, t cloud.Target) error {
	c, err := a.client(ctx, "stop", t.Region)
	if err != nil {
		return err
	}
	_, err = c.ec2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{t.InstanceID}})
	return a.fail("stop", err)
}

func (a *Adapter) Reboot(ctx context.Context, t cloud.Target) error {
	c, err := a.client(ctx, "reboot", t.Region)
	if err != nil {
		return err
	}
	_, err = c.ec2.RebootInstances(ctx, &ec2.RebootInstancesInput{InstanceIds: []string{t.InstanceID}})
	return a.fail("reboot", err)
}

func (a *Adapter) ListVolumes(ctx context.Context, t cloud.Target) ([]string, error) {
	c, err := a.client(ctx, "list_volumes", t.Region)
	if err != nil {
		return nil, err
	}
	resp, err := c.ec2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		Filters: []types.Filter{{Name: aws.String("attachment.instance-id"), Values: []string{t.InstanceID}}},
	})
	if err != nil {
		return nil, a.fail("list_volumes", err)
	}
	out := make([]string, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		out = append(out, aws.ToString(v.VolumeId))
	}
	return out, nil
}

func (a *Adapter) CreateSnapshot(ctx context.Context, t cloud.Target, volumeID, name, description string) (*cloud.SnapshotRef, error) {
	c, err := a.client(ctx, "create_snapshot", t.Region)
	if err != nil {
		return nil, err
	}
	resp, err := c.ec2.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeSnapshot,
			Tags: []types.Tag{
				{Key: aws.String("Name"), Value: aws.String(name)},
				{Key: aws.String("InstanceId"), Value: aws.String(t.InstanceID)},
			},
		}},
	})
	if err != nil {
		return nil, a.fail("create_snapshot", err)
	}
	return &cloud.SnapshotRef{
		SnapshotID: aws.ToString(resp.SnapshotId),
		VolumeID:   volumeID,
		Status:     mapSnapshotState(resp.State),
		SizeGB:     sizeGB(resp.VolumeSize),
		Message:    aws.ToString(resp.StateMessage),
	}, nil
}

func (a *Adapter) SnapshotStatus(ctx context.Context, t cloud.Target, snapshotID string) (*cloud.SnapshotRef, error) {
	c, err := a.client(ctx, "snapshot_status", t.Region)
	if err != nil {
		return nil, err
	}
	resp, err := c.ec2.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: []string{snapshotID}})
	if err != nil {
		return nil, a.fail("snapshot_status", err)
	}
	if len(resp.Snapshots) == 0 {
		return nil, &cloud.ProviderError{Provider: models.ProviderAWS, Op: "snapshot_status", Message: "snapshot not found", Err: cloud.ErrNotFound}
	}
	s := resp.Snapshots[0]
	return &cloud.SnapshotRef{
		SnapshotID: aws.ToString(s.SnapshotId),
		VolumeID:   aws.ToString(s.VolumeId),
		Status:     mapSnapshotState(s.State),
		SizeGB:     sizeGB(s.VolumeSize),
		Message:    aws.ToString(s.StateMessage),
	}, nil
}

func (a *Adapter) DeleteSnapshot(ctx context.Context, t cloud.Target, snapshotID string) error {
	c, err := a.client(ctx, "delete_snapshot", t.Region)
	if err != nil {
		return err
	}
	_, err = c.ec2.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{SnapshotId: aws.String(snapshotID)})
	return a.fail("delete_snapshot", err)
}

var metricQueries = []struct {
	id   string
	name string
	set  func(s *models.MetricSample, v float64)
}{
	{"cpu", "CPUUtilization", func(s *models.MetricSample, v float64) { s.CPUUtilization = models.Float(v) }},
	{"netin", "NetworkIn", func(s *models.MetricSample, v float64) { s.NetworkIn = models.Float(v) }},
	{"netout", "NetworkOut", func(s *models.MetricSample, v float64) { s.NetworkOut = models.Float(v) }},
	{"diskread", "DiskReadBytes", func(s *models.MetricSample, v float64) { s.DiskReadBytes = models.Float(v) }},
	{"diskwrite", "DiskWriteBytes", func(s *models.MetricSample, v float64) { s.DiskWriteBytes = models.Float(v) }},
}

// GetMetrics reads the 5-minute averages from CloudWatch. EC2 does not report
// memory or disk utilization without an agent, so those stay nil.
func (a *Adapter) GetMetrics(ctx context.Context, t cloud.Target, window time.Duration) ([]*models.MetricSample, error) {
	c, err := a.client(ctx, "get_metrics", t.Region)
	if err != nil {
		return nil, err
	}

	end := time.Now().UTC()
	start := end.Add(-window)

	queries := make([]cwtypes.MetricDataQuery, 0, len(metricQueries))
	for _, q := range metricQueries {
		queries = append(queries, cwtypes.MetricDataQuery{
			Id: aws.String(q.id),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String("AWS/EC2"),
					MetricName: aws.String(q.name),
					Dimensions: []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String(t.InstanceID)}},
				},
				Period: aws.Int32(metricPeriod),
				Stat:   aws.String("Average"),
			},
		})
	}

	resp, err := c.cw.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		StartTime:         aws.Time(start),
		EndTime:           aws.Time(end),
		MetricDataQueries: queries,
	})
	if err != nil {
		return nil, a.fail("get_metrics", err)
	}

	set := cloud.NewSampleSet(models.ProviderAWS, t.InstanceID)
	for _, result := range resp.MetricDataResults {
		id := aws.ToString(result.Id)
		for _, q := range metricQueries {
			if q.id != id {
				continue
			}
			for i, ts := range result.Timestamps {
				if i < len(result.Values) {
					q.set(set.At(ts), result.Values[i])
				}
			}
		}
	}
	return set.Samples(), nil
}

func toInstance(inst types.Instance, region string) cloud.Instance {
	out := cloud.Instance{
		InstanceID:   aws.ToString(inst.InstanceId),
		Region:       region,
		InstanceType: string(inst.InstanceType),
		State:        mapState(inst.State),
	}
	if inst.Placement != nil {
		out.Zone = aws.ToString(inst.Placement.AvailabilityZone)
	}
	for _, tag := range inst.Tags {
		if aws.ToString(tag.Key) == "Name" {
			out.Name = aws.ToString(tag.Value)
		}
	}
	if out.Name == "" {
		out.Name = out.InstanceID
	}
	for _, bd := range inst.BlockDeviceMappings {
		if bd.Ebs != nil && bd.Ebs.VolumeId != nil {
			out.VolumeIDs = append(out.VolumeIDs, *bd.Ebs.VolumeId)
		}
	}
	return out
}

func mapState(state *types.InstanceState) models.VMState {
	if state == nil {
		return models.VMStateUnknown
	}
	switch state.Name {
	case types.InstanceStateNameRunning:
		return models.VMStateRunning
	case types.InstanceStateNameStopped:
		return models.VMStateStopped
	case types.InstanceStateNamePending:
		return models.VMStatePending
	case types.InstanceStateNameStopping, types.InstanceStateNameShuttingDown:
		return models.VMStateStopping
	case types.InstanceStateNameTerminated:
		return models.VMStateTerminated
	}
	return models.VMStateUnknown
}

func mapSnapshotState(state types.SnapshotState) models.SnapshotStatus {
	switch state {
	case types.SnapshotStateCompleted:
		return models.SnapshotCompleted
	case types.SnapshotStateError:
		return models.SnapshotError
	}
	return models.SnapshotPending
}

func sizeGB(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
