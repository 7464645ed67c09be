package aws

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/softcane/cloud-action-agent/internal/actions"
)

func testInstance(id, instanceType, state, zone string) types.Instance {
	return types.Instance{
		InstanceId:       aws.String(id),
		InstanceType:     types.InstanceType(instanceType),
		State:            &types.InstanceState{Name: types.InstanceStateName(state)},
		Placement:        &types.Placement{AvailabilityZone: aws.String(zone)},
		LaunchTime:       aws.Time(time.Date(2024, 11, 5, 8, 30, 0, 0, time.UTC)),
		PrivateIpAddress: aws.String("10.0.1.15"),
		PublicIpAddress:  aws.String("54.210.8.9"),
	}
}

// TestListInstances verifies the paginated listing is reshaped and the state
// filter is forwarded.
func TestListInstances(t *testing.T) {
	ec2Fake := &fakeEC2{
		describePages: []*ec2.DescribeInstancesOutput{
			{
				Reservations: []types.Reservation{
					{Instances: []types.Instance{testInstance("i-0aaa", "m5.large", "running", "eu-west-1a")}},
				},
				NextToken: aws.String("page-2"),
			},
			{
				Reservations: []types.Reservation{
					{Instances: []types.Instance{testInstance("i-0bbb", "t3.micro", "stopped", "eu-west-1b")}},
				},
			},
		},
	}
	reg := newTestRegistry(t, ec2Fake, &fakePricing{})

	out, err := invoke(t, reg, "aws_list_instances", `{"states":["running","stopped"]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ec2Fake.describeReqs) != 2 {
		t.Fatalf("expected 2 paginated calls, got %d", len(ec2Fake.describeReqs))
	}
	filters := ec2Fake.describeReqs[0].Filters
	if len(filters) != 1 || aws.ToString(filters[0].Name) != "instance-state-name" {
		t.Fatalf("expected instance-state-name filter, got %+v", filters)
	}
	if aws.ToString(ec2Fake.describeReqs[1].NextToken) != "page-2" {
		t.Errorf("expected second call to carry the page token")
	}

	instances, ok := out.([]instanceSummary)
	if !ok {
		t.Fatalf("expected []instanceSummary, got %T", out)
	}
	if len(instances) != 2 {
		t.Fatalf("expected 2 instances, got %d", len(instances))
	}
	first := instances[0]
	if first.ID != "i-0aaa" || first.Type != "m5.large" || first.State != "running" || first.Zone != "eu-west-1a" {
		t.Errorf("first instance reshaped wrong: %+v", first)
	}
	if first.LaunchTime != "2024-11-05T08:30:00Z" {
		t.Errorf("expected RFC3339 launch time, got %q", first.LaunchTime)
	}
	if first.PrivateIP != "10.0.1.15" || first.PublicIP != "54.210.8.9" {
		t.Errorf("addresses reshaped wrong: %+v", first)
	}
	if instances[1].ID != "i-0bbb" || instances[1].State != "stopped" {
		t.Errorf("second instance reshaped wrong: %+v", instances[1])
	}
}

// TestListInstances_UnknownState verifies boundary validation.
func TestListInstances_UnknownState(t *testing.T) {
	ec2Fake := &fakeEC2{}
	reg := newTestRegistry(t, ec2Fake, &fakePricing{})

	_, err := invoke(t, reg, "aws_list_instances", `{"states":["sleeping"]}`)
	if !errors.Is(err, actions.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(ec2Fake.describeReqs) != 0 {
		t.Errorf("expected no API call after validation failure")
	}
}

// TestListInstances_APIError verifies SDK failures stay inspectable through
// the wrap.
func TestListInstances_APIError(t *testing.T) {
	boom := errors.New("throttled")
	reg := newTestRegistry(t, &fakeEC2{describeErr: boom}, &fakePricing{})

	_, err := invoke(t, reg, "aws_list_instances", `{}`)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped API error, got %v", err)
	}
}

func TestRebootInstance(t *testing.T) {
	ec2Fake := &fakeEC2{}
	reg := newTestRegistry(t, ec2Fake, &fakePricing{})

	out, err := invoke(t, reg, "aws_reboot_instance", `{"instance_id":"i-0aaa"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ec2Fake.rebootReq == nil || len(ec2Fake.rebootReq.InstanceIds) != 1 || ec2Fake.rebootReq.InstanceIds[0] != "i-0aaa" {
		t.Fatalf("reboot request not sent for i-0aaa: %+v", ec2Fake.rebootReq)
	}

	summary, ok := out.(rebootSummary)
	if !ok {
		t.Fatalf("expected rebootSummary, got %T", out)
	}
	if summary.InstanceID != "i-0aaa" || summary.Status != "reboot-requested" {
		t.Errorf("summary reshaped wrong: %+v", summary)
	}
}

func TestRebootInstance_MissingID(t *testing.T) {
	reg := newTestRegistry(t, &fakeEC2{}, &fakePricing{})

	_, err := invoke(t, reg, "aws_reboot_instance", `{}`)
	if !errors.Is(err, actions.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// TestStopInstance verifies the stop call and the wait for the stopped state.
func TestStopInstance(t *testing.T) {
	ec2Fake := &fakeEC2{
		stopOut: &ec2.StopInstancesOutput{
			StoppingInstances: []types.InstanceStateChange{
				{
					InstanceId:    aws.String("i-0aaa"),
					PreviousState: &types.InstanceState{Name: types.InstanceStateNameRunning},
					CurrentState:  &types.InstanceState{Name: types.InstanceStateNameStopping},
				},
			},
		},
		describePages: []*ec2.DescribeInstancesOutput{
			{
				Reservations: []types.Reservation{
					{Instances: []types.Instance{testInstance("i-0aaa", "m5.large", "stopped", "eu-west-1a")}},
				},
			},
		},
	}
	reg := newTestRegistry(t, ec2Fake, &fakePricing{})

	out, err := invoke(t, reg, "aws_stop_instance", `{"instance_id":"i-0aaa"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ec2Fake.stopReq == nil || aws.ToBool(ec2Fake.stopReq.Force) {
		t.Fatalf("expected non-forced stop request, got %+v", ec2Fake.stopReq)
	}
	if len(ec2Fake.describeReqs) != 1 {
		t.Fatalf("expected one waiter poll, got %d", len(ec2Fake.describeReqs))
	}

	summary, ok := out.(stopSummary)
	if !ok {
		t.Fatalf("expected stopSummary, got %T", out)
	}
	if summary.InstanceID != "i-0aaa" || summary.PreviousState != "running" || summary.CurrentState != "stopped" {
		t.Errorf("summary reshaped wrong: %+v", summary)
	}
}

// TestStopInstance_NoWait verifies wait=false skips the waiter and force is
// forwarded.
func TestStopInstance_NoWait(t *testing.T) {
	ec2Fake := &fakeEC2{
		stopOut: &ec2.StopInstancesOutput{
			StoppingInstances: []types.InstanceStateChange{
				{
					InstanceId:    aws.String("i-0bbb"),
					PreviousState: &types.InstanceState{Name: types.InstanceStateNameRunning},
					CurrentState:  &types.InstanceState{Name: types.InstanceStateNameStopping},
				},
			},
		},
	}
	reg := newTestRegistry(t, ec2Fake, &fakePricing{})

	out, err := invoke(t, reg, "aws_stop_instance", `{"instance_id":"i-0bbb","wait":false,"force":true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !aws.ToBool(ec2Fake.stopReq.Force) {
		t.Errorf("expected forced stop request")
	}
	if len(ec2Fake.describeReqs) != 0 {
		t.Errorf("expected no waiter polls, got %d", len(ec2Fake.describeReqs))
	}

	summary, ok := out.(stopSummary)
	if !ok {
		t.Fatalf("expected stopSummary, got %T", out)
	}
	if summary.CurrentState != "stopping" {
		t.Errorf("expected stopping state, got %q", summary.CurrentState)
	}
}

// TestAuthorizeSecurityGroupIngress verifies the defaulted permission shape
// and the rule IDs in the summary.
func TestAuthorizeSecurityGroupIngress(t *testing.T) {
	ec2Fake := &fakeEC2{
		ingressOut: &ec2.AuthorizeSecurityGroupIngressOutput{
			SecurityGroupRules: []types.SecurityGroupRule{
				{SecurityGroupRuleId: aws.String("sgr-111")},
				{SecurityGroupRuleId: aws.String("sgr-222")},
			},
		},
	}
	reg := newTestRegistry(t, ec2Fake, &fakePricing{})

	out, err := invoke(t, reg, "aws_authorize_security_group_ingress", `{"group_id":"sg-0f00","to_port":443}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := ec2Fake.ingressReq
	if req == nil || aws.ToString(req.GroupId) != "sg-0f00" {
		t.Fatalf("ingress request not sent for sg-0f00: %+v", req)
	}
	if len(req.IpPermissions) != 1 {
		t.Fatalf("expected one permission, got %d", len(req.IpPermissions))
	}
	perm := req.IpPermissions[0]
	if aws.ToString(perm.IpProtocol) != "tcp" {
		t.Errorf("expected default tcp protocol, got %q", aws.ToString(perm.IpProtocol))
	}
	if aws.ToInt32(perm.FromPort) != 443 || aws.ToInt32(perm.ToPort) != 443 {
		t.Errorf("expected port range 443..443, got %d..%d", aws.ToInt32(perm.FromPort), aws.ToInt32(perm.ToPort))
	}
	if len(perm.IpRanges) != 1 || aws.ToString(perm.IpRanges[0].CidrIp) != "0.0.0.0/0" {
		t.Errorf("expected default 0.0.0.0/0 range, got %+v", perm.IpRanges)
	}

	summary, ok := out.(ingressSummary)
	if !ok {
		t.Fatalf("expected ingressSummary, got %T", out)
	}
	if summary.GroupID != "sg-0f00" || len(summary.RuleIDs) != 2 || summary.RuleIDs[1] != "sgr-222" {
		t.Errorf("summary reshaped wrong: %+v", summary)
	}
}

// TestAuthorizeSecurityGroupIngress_Validation drives the rejected inputs.
func TestAuthorizeSecurityGroupIngress_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing group", `{"to_port":443}`},
		{"missing port", `{"group_id":"sg-0f00"}`},
		{"inverted range", `{"group_id":"sg-0f00","from_port":8080,"to_port":80}`},
		{"bad protocol", `{"group_id":"sg-0f00","to_port":443,"protocol":"icmp"}`},
		{"bad cidr", `{"group_id":"sg-0f00","to_port":443,"cidr_blocks":["10.0.0.0"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec2Fake := &fakeEC2{}
			reg := newTestRegistry(t, ec2Fake, &fakePricing{})

			_, err := invoke(t, reg, "aws_authorize_security_group_ingress", tt.input)
			if !errors.Is(err, actions.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if ec2Fake.ingressReq != nil {
				t.Errorf("expected no API call after validation failure")
			}
		})
	}
}
