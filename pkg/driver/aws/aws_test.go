package aws

import (
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

func TestTagValueFindsMatchingKey(t *testing.T) {
	tags := []types.Tag{
		{Key: awssdk.String("Name"), Value: awssdk.String("web")},
		{Key: awssdk.String("namespace"), Value: awssdk.String("team-a")},
	}
	if got := tagValue(tags, "namespace"); got != "team-a" {
		t.Errorf("got %q", got)
	}
	if got := tagValue(tags, "missing"); got != "" {
		t.Errorf("expected empty string for missing key, got %q", got)
	}
}

func TestIsAWSErrorCode(t *testing.T) {
	if isAWSErrorCode(nil, "InvalidGroup.Duplicate") {
		t.Errorf("nil error should never match a code")
	}
	if !isAWSErrorCode(errors.New("api error InvalidGroup.Duplicate: group exists"), "InvalidGroup.Duplicate") {
		t.Errorf("expected error containing the code to match")
	}
	if isAWSErrorCode(errors.New("some other failure"), "InvalidGroup.Duplicate") {
		t.Errorf("unrelated error should not match")
	}
}
