package minotaur_test

import (
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/google/go-cmp/cmp"
)

func TestType_Width(t *testing.T) {
	t.Run("Scalar", func(t *testing.T) {
		if w := minotaur.IntegerType(32).Width(); w != 32 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Vector", func(t *testing.T) {
		if w := minotaur.IntegerVectorizableType(4, 8).Width(); w != 32 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("LaneTimesBits", func(t *testing.T) {
		for _, ty := range []minotaur.Type{
			minotaur.IntegerType(1),
			minotaur.IntegerVectorizableType(16, 8),
			minotaur.ScalarType(64, true),
		} {
			if ty.Width() != ty.Lane*ty.Bits {
				t.Fatalf("width law violated for %s", ty)
			}
		}
	})
}

func TestType_Null(t *testing.T) {
	if minotaur.NullType().IsValid() {
		t.Fatal("expected invalid")
	}
	if s := minotaur.NullType().String(); s != "null" {
		t.Fatalf("unexpected string: %s", s)
	}
}

func TestType_IsBool(t *testing.T) {
	if !minotaur.IntegerType(1).IsBool() {
		t.Fatal("expected true")
	} else if minotaur.IntegerType(8).IsBool() {
		t.Fatal("expected false")
	} else if minotaur.ScalarType(1, true).IsBool() {
		t.Fatal("expected false for fp")
	}
}

func TestType_AsScalarAsVector(t *testing.T) {
	ty := minotaur.IntegerVectorizableType(4, 16)
	if diff := cmp.Diff(ty.AsScalar(), ty.AsVector(ty.Lane).AsScalar()); diff != "" {
		t.Fatal(diff)
	}
}

func TestType_AsInteger(t *testing.T) {
	t.Run("FP", func(t *testing.T) {
		got := minotaur.ScalarType(32, true).AsInteger()
		if diff := cmp.Diff(minotaur.IntegerType(32), got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("IntVector", func(t *testing.T) {
		ty := minotaur.IntegerVectorizableType(4, 8)
		if diff := cmp.Diff(ty, ty.AsInteger()); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestType_SameWidth(t *testing.T) {
	a := minotaur.IntegerVectorizableType(4, 8)
	b := minotaur.IntegerType(32)
	if !a.SameWidth(b) {
		t.Fatal("expected same width")
	}
	if a.SameWidth(minotaur.IntegerType(64)) {
		t.Fatal("expected different width")
	}
}

func TestType_String(t *testing.T) {
	for _, tt := range []struct {
		ty   minotaur.Type
		want string
	}{
		{minotaur.IntegerType(32), "i32"},
		{minotaur.ScalarType(16, true), "half"},
		{minotaur.ScalarType(32, true), "float"},
		{minotaur.ScalarType(64, true), "double"},
		{minotaur.ScalarType(128, true), "fp128"},
		{minotaur.IntegerVectorizableType(4, 8), "<4 x i8>"},
	} {
		if s := tt.ty.String(); s != tt.want {
			t.Fatalf("unexpected string: %s", s)
		}
	}
}

func TestIntegerVectorTypes(t *testing.T) {
	t.Run("Width32", func(t *testing.T) {
		got := minotaur.IntegerVectorTypes(minotaur.IntegerType(32))
		want := []minotaur.Type{
			minotaur.IntegerVectorizableType(1, 32),
			minotaur.IntegerVectorizableType(2, 16),
			minotaur.IntegerVectorizableType(4, 8),
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("WidthsAllEqual", func(t *testing.T) {
		ty := minotaur.IntegerVectorizableType(2, 64)
		for _, v := range minotaur.IntegerVectorTypes(ty) {
			if v.Width() != ty.Width() {
				t.Fatalf("width changed: %s", v)
			}
		}
	})
	t.Run("NonByteWidth", func(t *testing.T) {
		ty := minotaur.IntegerType(13)
		got := minotaur.IntegerVectorTypes(ty)
		if diff := cmp.Diff([]minotaur.Type{ty}, got); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestBinaryOpWorkTypes(t *testing.T) {
	t.Run("LogicalWholeWidth", func(t *testing.T) {
		got := minotaur.BinaryOpWorkTypes(minotaur.IntegerVectorizableType(4, 8), minotaur.BinOpAnd)
		want := []minotaur.Type{minotaur.IntegerType(32)}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("BooleanOnlyLogical", func(t *testing.T) {
		if got := minotaur.BinaryOpWorkTypes(minotaur.IntegerType(1), minotaur.BinOpAdd); got != nil {
			t.Fatalf("expected no work types, got %v", got)
		}
	})
	t.Run("ArithmeticVectorizations", func(t *testing.T) {
		got := minotaur.BinaryOpWorkTypes(minotaur.IntegerType(16), minotaur.BinOpAdd)
		want := []minotaur.Type{
			minotaur.IntegerVectorizableType(1, 16),
			minotaur.IntegerVectorizableType(2, 8),
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("FPExact", func(t *testing.T) {
		fty := minotaur.ScalarType(32, true)
		got := minotaur.BinaryOpWorkTypes(fty, minotaur.BinOpFAdd)
		if diff := cmp.Diff([]minotaur.Type{fty}, got); diff != "" {
			t.Fatal(diff)
		}
		if minotaur.BinaryOpWorkTypes(fty, minotaur.BinOpAdd) != nil {
			t.Fatal("integer op must not admit fp result")
		}
	})
}

func TestUnaryOpWorkTypes(t *testing.T) {
	t.Run("BSwapNeeds16Bits", func(t *testing.T) {
		for _, ty := range minotaur.UnaryOpWorkTypes(minotaur.IntegerType(32), minotaur.UnOpBSwap) {
			if ty.Bits < 16 || ty.Bits%8 != 0 {
				t.Fatalf("illegal bswap work type: %s", ty)
			}
		}
	})
	t.Run("CtPopAllVectorizations", func(t *testing.T) {
		got := minotaur.UnaryOpWorkTypes(minotaur.IntegerType(32), minotaur.UnOpCtPop)
		if len(got) != 3 {
			t.Fatalf("unexpected work type count: %d", len(got))
		}
	})
}

func TestInsertElementWorkTypes(t *testing.T) {
	for _, ty := range minotaur.InsertElementWorkTypes(minotaur.IntegerType(32)) {
		if ty.Lane < 2 {
			t.Fatalf("scalar work type emitted: %s", ty)
		}
	}
}
