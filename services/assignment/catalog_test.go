package assignment

import (
	"errors"
	"testing"

	"gigtasks/models"
)

func TestCreateTasks(t *testing.T) {
	s, db, _ := newTestService(t, Options{})

	tasks, rowErrs, err := s.CreateTasks(ctx, []TaskInput{
		{Text: "Review the cafe", Source: "Yandex", Link: "https://yandex.example/1", City: "Moscow", Gender: "женский"},
		{Text: "Review the gym", Source: "google", Link: "https://google.example/2"},
	})
	if err != nil || rowErrs != nil {
		t.Fatalf("CreateTasks = %v, %v", rowErrs, err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Source != models.SourceYandex || tasks[0].CityID == nil {
		t.Fatalf("unexpected first task %+v", tasks[0])
	}
	if tasks[0].RequiredGender == nil || *tasks[0].RequiredGender != models.GenderFemale {
		t.Fatalf("gender not parsed: %v", tasks[0].RequiredGender)
	}
	if tasks[1].CityID != nil || tasks[1].RequiredGender != nil {
		t.Fatalf("unexpected second task %+v", tasks[1])
	}
	if tasks[0].HumanCode[:4] != "YAN-" || tasks[1].HumanCode[:4] != "GGL-" {
		t.Fatalf("unexpected human codes %s %s", tasks[0].HumanCode, tasks[1].HumanCode)
	}

	var cities int64
	db.Model(&models.City{}).Count(&cities)
	if cities != 1 {
		t.Fatalf("expected city to be created once, got %d", cities)
	}
}

func TestCreateTasks_InvalidRowRejectsBatch(t *testing.T) {
	s, db, _ := newTestService(t, Options{})

	_, rowErrs, err := s.CreateTasks(ctx, []TaskInput{
		{Text: "ok", Source: "yandex", Link: "https://yandex.example/1"},
		{Text: "bad source", Source: "bing", Link: "https://bing.example/2"},
		{Text: "", Source: "google", Link: "https://google.example/3"},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(rowErrs) != 2 || rowErrs[0].Row != 2 || rowErrs[1].Row != 3 {
		t.Fatalf("unexpected row errors %+v", rowErrs)
	}
	var count int64
	db.Model(&models.Task{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected nothing stored, got %d tasks", count)
	}
}

func TestListAvailableTasks(t *testing.T) {
	s, db, _ := newTestService(t, Options{})
	w := createWorker(t, db, 100, nil)
	createTask(t, db, "X", nil, nil)
	free := createTask(t, db, "Y", nil, nil)
	mustAssign(t, s, w.ID, Filter{Source: "X"})

	tasks, err := s.ListAvailableTasks(ctx, "")
	if err != nil {
		t.Fatalf("ListAvailableTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != free.ID {
		t.Fatalf("expected only the free task, got %+v", tasks)
	}
	if tasks, _ := s.ListAvailableTasks(ctx, "X"); len(tasks) != 0 {
		t.Fatalf("expected no free X tasks, got %d", len(tasks))
	}
}

func TestParseGender(t *testing.T) {
	cases := map[string]string{
		"M": models.GenderMale, "мужской": models.GenderMale, "female": models.GenderFemale, "Ж": models.GenderFemale,
		"": "", "any": "",
	}
	for in, want := range cases {
		got, ok := ParseGender(in)
		if !ok {
			t.Fatalf("ParseGender(%q) rejected", in)
		}
		if (got == nil && want != "") || (got != nil && *got != want) {
			t.Fatalf("ParseGender(%q) = %v, want %q", in, got, want)
		}
	}
	if _, ok := ParseGender("robot"); ok {
		t.Fatal("expected unknown gender to be rejected")
	}
}
