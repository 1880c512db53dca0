package domain

import (
	"errors"
	"reflect"
	"testing"
)

func TestCategoryValid(t *testing.T) {
	for _, c := range []Category{CategoryNone, CategoryHealth, CategoryGrocery, CategoryPersonal, CategoryWork} {
		if !c.Valid() {
			t.Fatalf("%q should be valid", c)
		}
	}
	for _, c := range []Category{"sports", "Health", "grocery "} {
		if c.Valid() {
			t.Fatalf("%q should be rejected", c)
		}
	}
}

func TestNormalizeItems(t *testing.T) {
	got, err := NormalizeItems([]string{" Milk ", "Eggs", "\tBread\n"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Milk", "Eggs", "Bread"}) {
		t.Fatalf("unexpected items: %#v", got)
	}

	cases := []struct {
		name  string
		items []string
	}{
		{"nil", nil},
		{"empty", []string{}},
		{"blank entry", []string{"Milk", "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NormalizeItems(tc.items); !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestValidateTitle(t *testing.T) {
	title, err := ValidateTitle("  Groceries  ")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if title != "Groceries" {
		t.Fatalf("expected trimmed title, got %q", title)
	}
	if _, err := ValidateTitle("   "); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTaskUpdateEmpty(t *testing.T) {
	if !(TaskUpdate{}).Empty() {
		t.Fatal("zero update should be empty")
	}
	title := "x"
	if (TaskUpdate{Title: &title}).Empty() {
		t.Fatal("update with a title is not empty")
	}
	items := []string{}
	if (TaskUpdate{Items: &items}).Empty() {
		t.Fatal("update with supplied items is not empty, even when the slice is")
	}
}

func TestValidationErrorShape(t *testing.T) {
	err := ValidationError{Field: "title", Reason: "title must not be empty"}
	if err.Error() != "invalid title: title must not be empty" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	if !IsValidation(err) {
		t.Fatal("IsValidation should match ValidationError")
	}
	if IsValidation(ErrNotFound) {
		t.Fatal("IsValidation should not match ErrNotFound")
	}
	if IsValidation(nil) {
		t.Fatal("IsValidation should not match nil")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("validation and not-found must stay distinct")
	}
}
