package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		label string
		want  Segment
	}{
		{"●発熱・風邪症状外来", Fever},
		{"内科・外科外来（大岩医師）", General},
		{"大腸カメラ（胃カメラ併用もこちら）", EndoscopyColon},
		{"胃カメラ", EndoscopyStomach},
		{"胃内視鏡検査", EndoscopyStomach},
		{"大腸内視鏡検査", EndoscopyColon},
		{"下部内視鏡", EndoscopyColon},
		{"内視鏡", EndoscopyStomach},
		// Fever outranks general medicine.
		{"発熱外来（内科）", Fever},
		// General medicine outranks endoscopy.
		{"内科（胃カメラ相談）", General},
		{"Fever clinic", Fever},
		{"Colonoscopy", EndoscopyColon},
		{"予防接種", None},
		{"", None},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.label), tc.label)
	}
}

func TestSegmentGroup(t *testing.T) {
	g, ok := EndoscopyStomach.Group()
	require.True(t, ok)
	assert.Equal(t, GroupEndoscopy, g)
	g, _ = EndoscopyColon.Group()
	assert.Equal(t, GroupEndoscopy, g)
	_, ok = None.Group()
	assert.False(t, ok)
	assert.Equal(t, "none", None.String())
}

func TestClassifierOverrides(t *testing.T) {
	c, err := NewClassifier(map[string]string{"人間ドック": "general", "大腸カメラ（胃カメラ併用もこちら）": "stomach"})
	require.NoError(t, err)
	assert.Equal(t, General, c.Classify("人間ドック"))
	assert.Equal(t, EndoscopyStomach, c.Classify(" 大腸カメラ（胃カメラ併用もこちら） "))
	assert.Equal(t, Fever, c.Classify("発熱外来"))

	c, err = NewClassifier(map[string]string{"skin clinic": "general"})
	require.NoError(t, err)
	assert.Equal(t, General, c.Classify("Skin Clinic"))

	var nilClassifier *Classifier
	assert.Equal(t, Fever, nilClassifier.Classify("発熱外来"))

	_, err = NewClassifier(map[string]string{"x": "dermatology"})
	assert.Error(t, err)
}
