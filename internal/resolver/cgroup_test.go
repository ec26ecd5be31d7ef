package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainerIDFromCgroup(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantID  string
		wantOK  bool
	}{
		{
			name:    "bare path",
			content: "/987654321",
			wantID:  "987654321",
			wantOK:  true,
		},
		{
			name:    "separators only",
			content: "///",
			wantOK:  false,
		},
		{
			name:    "empty content",
			content: "",
			wantOK:  false,
		},
		{
			name:    "whitespace only",
			content: "   \n\n  ",
			wantOK:  false,
		},
		{
			name:    "cgroup v1 line",
			content: "12:memory:/kubepods/burstable/pod42a8/8d2c9f3ab1",
			wantID:  "8d2c9f3ab1",
			wantOK:  true,
		},
		{
			name:    "cgroup v2 line",
			content: "0::/kubepods.slice/kubepods-pod42a8.slice/cri-containerd-8d2c9f3ab1.scope",
			wantID:  "cri-containerd-8d2c9f3ab1.scope",
			wantOK:  true,
		},
		{
			name: "multiple v1 lines take first usable",
			content: "12:cpuset:/kubepods/pod1/aaa111\n" +
				"11:memory:/kubepods/pod1/aaa111\n",
			wantID: "aaa111",
			wantOK: true,
		},
		{
			name:    "degenerate first line falls through to next",
			content: "1:cpu:///\n0::/kubepods/pod1/bbb222",
			wantID:  "bbb222",
			wantOK:  true,
		},
		{
			name:    "trailing separator still yields segment",
			content: "/kubepods/ccc333/",
			wantID:  "ccc333",
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ContainerIDFromCgroup(tt.content)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}
