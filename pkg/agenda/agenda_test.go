// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package agenda

import (
	"testing"

	"github.com/charmbracelet/x/exp/golden"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleAgenda mirrors a mid-interview agenda with one answered question
// tree and one untouched question.
func sampleAgenda(t *testing.T) *Agenda {
	t.Helper()
	a := New("test_user", 1, "")
	_, err := a.AddInterviewQuestion("Personal", "Where did you grow up?", "1")
	require.NoError(t, err)
	require.NoError(t, a.AddNote("1", "Grew up in Boston"))
	_, err = a.AddInterviewQuestion("Personal", "What neighborhood?", "1.1")
	require.NoError(t, err)
	require.NoError(t, a.AddNote("1.1", "South End"))
	_, err = a.AddInterviewQuestion("Professional", "Current role?", "2")
	require.NoError(t, err)

	_, err = a.SetPortraitField("name", "John Doe")
	require.NoError(t, err)
	_, err = a.SetPortraitField("age", "30")
	require.NoError(t, err)
	require.NoError(t, a.SetLastMeetingSummary("First meeting with John"))
	return a
}

func TestPortraitStr(t *testing.T) {
	a := sampleAgenda(t)
	assert.Equal(t, "Name: John Doe\nAge: 30", a.PortraitStr())

	created, err := a.SetPortraitField("family_status", "married")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = a.SetPortraitField("name", "John")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Name: John\nAge: 30\nFamily Status: married", a.PortraitStr())
}

func TestLastMeetingSummaryStr(t *testing.T) {
	a := sampleAgenda(t)
	assert.Equal(t, "First meeting with John", a.LastMeetingSummaryStr())
}

func TestQuestionsAndNotesStr(t *testing.T) {
	a := sampleAgenda(t)
	golden.RequireEqual(t, []byte(a.QuestionsAndNotesStr(ShowAll)))
}

func TestQuestionsAndNotesStrHidesAnswered(t *testing.T) {
	a := sampleAgenda(t)
	out := a.QuestionsAndNotesStr(HideAnsweredQA)
	assert.Contains(t, out, "[ID] 1: (Answered)")
	assert.Contains(t, out, "[ID] 1.1: (Answered)")
	assert.NotContains(t, out, "Grew up in Boston")
	// Unanswered questions keep their text.
	assert.Contains(t, out, "[ID] 2: Current role?")
}

func TestAddInterviewQuestionInfersParent(t *testing.T) {
	a := sampleAgenda(t)

	_, err := a.AddInterviewQuestion("Personal", "What schools did you attend?", "3")
	require.NoError(t, err)
	assert.Equal(t, "What schools did you attend?", a.Question("3").Question)

	_, err = a.AddInterviewQuestion("Personal", "Which high school?", "3.1")
	require.NoError(t, err)
	assert.Equal(t, "Which high school?", a.Question("3.1").Question)

	_, err = a.AddInterviewQuestion("Personal", "Orphaned", "9.1")
	assert.ErrorContains(t, err, "parent question with id 9 not found")
}

func TestAddInterviewQuestionAutoID(t *testing.T) {
	a := New("u", 1, "")
	q, err := a.AddInterviewQuestion("Travel", "First trip abroad?", "")
	require.NoError(t, err)
	assert.Equal(t, "1", q.ID)
	q, err = a.AddInterviewQuestion("Travel", "Favorite city?", "")
	require.NoError(t, err)
	assert.Equal(t, "2", q.ID)
}

func TestAddInterviewQuestionDepthCap(t *testing.T) {
	a := New("u", 1, "")
	for _, id := range []string{"1", "1.1", "1.1.1", "1.1.1.1"} {
		_, err := a.AddInterviewQuestion("T", "q", id)
		require.NoError(t, err)
	}
	_, err := a.AddInterviewQuestion("T", "too deep", "1.1.1.1.1")
	assert.Error(t, err)
}

func TestAddNote(t *testing.T) {
	a := sampleAgenda(t)

	require.NoError(t, a.AddNote("2", "Working as senior developer"))
	assert.Contains(t, a.Question("2").Notes, "Working as senior developer")

	require.NoError(t, a.AddNote("", "Follow up needed on education"))
	assert.Equal(t, "Follow up needed on education", a.AdditionalNotesStr())

	err := a.AddNote("999", "lost")
	assert.ErrorContains(t, err, "question with id 999 not found")
}

func TestDeleteInterviewQuestion(t *testing.T) {
	a := sampleAgenda(t)

	// Leaf questions disappear.
	require.NoError(t, a.DeleteInterviewQuestion("2"))
	assert.Nil(t, a.Question("2"))

	// Questions with sub-questions keep the node for their children.
	require.NoError(t, a.DeleteInterviewQuestion("1"))
	q := a.Question("1")
	require.NotNil(t, q)
	assert.Empty(t, q.Question)
	assert.Empty(t, q.Notes)
	assert.Equal(t, "What neighborhood?", a.Question("1.1").Question)

	require.NoError(t, a.DeleteInterviewQuestion("1.1"))
	assert.Nil(t, a.Question("1.1"))

	assert.ErrorContains(t, a.DeleteInterviewQuestion("999"), "question with id 999 not found")
	assert.ErrorContains(t, a.DeleteInterviewQuestion("999.1"), "parent question with id 999 not found")
}

func TestClearQuestionsKeepsPortraitAndSummary(t *testing.T) {
	a := sampleAgenda(t)
	require.NoError(t, a.ClearQuestions())

	assert.Empty(t, a.QuestionsAndNotesStr(ShowAll))
	assert.Empty(t, a.AdditionalNotesStr())
	assert.Equal(t, "Name: John Doe\nAge: 30", a.PortraitStr())
	assert.Equal(t, "First meeting with John", a.LastMeetingSummaryStr())

	_, err := a.AddInterviewQuestion("New Topic", "First question after clearing?", "1")
	require.NoError(t, err)
	_, err = a.AddInterviewQuestion("New Topic", "Sub-question after clearing?", "1.1")
	require.NoError(t, err)
	assert.Equal(t, "First question after clearing?", a.Question("1").Question)
	assert.Equal(t, "Sub-question after clearing?", a.Question("1.1").Question)
}

func TestInitialAgenda(t *testing.T) {
	a := Initial("test_user", "")
	assert.Equal(t, 0, a.SessionID)
	assert.Contains(t, a.PortraitStr(), "Name: ")
	assert.NotEmpty(t, a.LastMeetingSummaryStr())

	out := a.QuestionsAndNotesStr(ShowAll)
	assert.Contains(t, out, "Topic: General")
	assert.Contains(t, out, "Topic: Personal")
	assert.Contains(t, out, "[ID] 1: What is your name?")
	assert.Contains(t, out, "Where did you grow up?")
}

func TestSaveAndLoadLast(t *testing.T) {
	dir := t.TempDir()

	// First load creates and saves the initial agenda.
	a, err := LoadLast("test_user", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, a.SessionID)

	// A later session becomes the one LoadLast returns.
	b := New("test_user", 2, dir)
	_, err = b.AddInterviewQuestion("Personal", "Where did you grow up?", "1")
	require.NoError(t, err)
	require.NoError(t, b.AddNote("1", "Grew up in Boston"))
	_, err = b.SetPortraitField("Name", "John")
	require.NoError(t, err)
	require.NoError(t, b.Save())

	last, err := LoadLast("test_user", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, last.SessionID)
	assert.Equal(t, "test_user", last.UserID)
	require.NotNil(t, last.Question("1"))
	assert.Equal(t, []string{"Grew up in Boston"}, last.Question("1").Notes)
	assert.Equal(t, "Name: John", last.PortraitStr())

	// Mutations on a loaded agenda keep persisting to the same directory.
	require.NoError(t, last.AddNote("1", "Moved away at eighteen"))
	again, err := LoadLast("test_user", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Grew up in Boston", "Moved away at eighteen"}, again.Question("1").Notes)
}
