package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/preprocessing"
)

func TestEncodeCategoricals_Union(t *testing.T) {
	train := readFrame(t, "ticket_id,disposition,violation_code\n1,Responsible by Default,22-2-88\n2,Responsible by Admission,9-1-36\n3,Responsible by Default,22-2-88\n")
	test := readFrame(t, "ticket_id,disposition,violation_code\n10,Responsible (Fine Waived) by Deter,22-2-88\n11,Responsible by Default,61-63.0600\n")

	enc, err := EncodeCategoricals(train, test, []string{ColDisposition, ColViolationCode}, VocabularyUnion)
	require.NoError(t, err)

	// ソート済み語彙: Fine Waived < by Admission < by Default
	assert.Equal(t, []string{"2", "1", "2"}, enc.Train.Col(ColDisposition).Records())
	assert.Equal(t, []string{"0", "2"}, enc.Test.Col(ColDisposition).Records())
	// "22-2-88" < "61-63.0600" < "9-1-36"
	assert.Equal(t, []string{"0", "2", "0"}, enc.Train.Col(ColViolationCode).Records())
	assert.Equal(t, []string{"0", "1"}, enc.Test.Col(ColViolationCode).Records())

	assert.Equal(t, map[string]int{ColDisposition: 3, ColViolationCode: 3}, enc.VocabularySizes())
	assert.Empty(t, enc.Unknown)

	// 入力フレームはそのまま
	assert.Equal(t, "Responsible by Default", train.Col(ColDisposition).Records()[0])
}

func TestEncodeCategoricals_TrainOnly(t *testing.T) {
	train := readFrame(t, "ticket_id,disposition\n1,b\n2,a\n3,NA\n")
	test := readFrame(t, "ticket_id,disposition\n10,c\n11,a\n")

	enc, err := EncodeCategoricals(train, test, []string{ColDisposition}, VocabularyTrain)
	require.NoError(t, err)

	// 欠損は "NaN" という値として符号化される
	assert.Equal(t, []string{"NaN", "a", "b"}, enc.Encoders[ColDisposition].Classes())
	assert.Equal(t, []string{"2", "1", "0"}, enc.Train.Col(ColDisposition).Records())
	assert.Equal(t, []string{"-1", "1"}, enc.Test.Col(ColDisposition).Records())
	assert.Equal(t, preprocessing.UnknownCode, -1)
	assert.Equal(t, map[string]int{ColDisposition: 1}, enc.Unknown)
}

func TestEncodeCategoricals_Errors(t *testing.T) {
	train := readFrame(t, "disposition\na\n")
	test := readFrame(t, "other\nb\n")

	_, err := EncodeCategoricals(train, train, []string{ColDisposition}, VocabularyMode("all"))
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))

	_, err = EncodeCategoricals(train, test, []string{ColDisposition}, VocabularyUnion)
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, TableTest, schemaErr.Table)
}
