package mqtt

import "testing"

func TestPointValueTopic(t *testing.T) {
	tests := []struct {
		name                          string
		site, equipType, equipID, pnt string
		want                          string
	}{
		{
			name: "simple",
			site: "KLCC", equipType: "AHU", equipID: "12", pnt: "SupplyTemp",
			want: "klcc/ahu_12/SupplyTemp/presentValue",
		},
		{
			name: "site with spaces",
			site: "Plant North", equipType: "Chiller", equipID: "3", pnt: "CHWST",
			want: "plant_north/chiller_3/CHWST/presentValue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Topics{}.PointValue(tt.site, tt.equipType, tt.equipID, tt.pnt)
			if got != tt.want {
				t.Errorf("PointValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEquipmentBatchTopic(t *testing.T) {
	got := Topics{}.EquipmentBatch("KLCC", "AHU", "12")
	if got != "klcc/ahu_12/batch" {
		t.Errorf("EquipmentBatch() = %q, want klcc/ahu_12/batch", got)
	}
}

func TestFixedTopics(t *testing.T) {
	if got := (Topics{}).WriteCommand(); got != "bacnet/write/command" {
		t.Errorf("WriteCommand() = %q", got)
	}
	if got := (Topics{}).WriteResult(); got != "bacnet/write/result" {
		t.Errorf("WriteResult() = %q", got)
	}
	if got := (Topics{}).SystemStatus(); got != "bacnet/system/status" {
		t.Errorf("SystemStatus() = %q", got)
	}
}

func TestPointValueWildcards(t *testing.T) {
	patterns := Topics{}.PointValueWildcards()
	if len(patterns) != 2 {
		t.Fatalf("PointValueWildcards() returned %d patterns, want 2", len(patterns))
	}
	if patterns[0] != "+/+/+/presentValue" {
		t.Errorf("patterns[0] = %q", patterns[0])
	}
	if patterns[1] != "+/+/+/+/presentValue" {
		t.Errorf("patterns[1] = %q", patterns[1])
	}
}

func TestNormaliseSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KLCC", "klcc"},
		{"Plant North", "plant_north"},
		{"ahu", "ahu"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormaliseSegment(tt.in); got != tt.want {
			t.Errorf("NormaliseSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
