/*
 * keos - Substring search (KMP and Boyer-Moore)
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package fat32

// SearchKnuthMorrisPratt reports whether pattern occurs in text, using a
// precomputed failure function for an amortized O(|text|+|pattern|) scan
// (spec §4.4 "Substring search").
func SearchKnuthMorrisPratt(text, pattern string) bool {
	if len(pattern) == 0 {
		return true
	}
	if len(pattern) > len(text) {
		return false
	}
	fail := kmpFailure(pattern)
	j := 0
	for i := 0; i < len(text); i++ {
		for j > 0 && text[i] != pattern[j] {
			j = fail[j-1]
		}
		if text[i] == pattern[j] {
			j++
		}
		if j == len(pattern) {
			return true
		}
	}
	return false
}

func kmpFailure(pattern string) []int {
	fail := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = fail[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		fail[i] = k
	}
	return fail
}

// SearchBoyerMoore reports whether pattern occurs in text, using the
// bad-character heuristic only (worst case O(|text|*|pattern|), typically
// sublinear; spec §4.4).
func SearchBoyerMoore(text, pattern string) bool {
	m := len(pattern)
	n := len(text)
	if m == 0 {
		return true
	}
	if m > n {
		return false
	}

	var last [256]int
	for i := range last {
		last[i] = -1
	}
	for i := 0; i < m; i++ {
		last[pattern[i]] = i
	}

	s := 0
	for s <= n-m {
		j := m - 1
		for j >= 0 && pattern[j] == text[s+j] {
			j--
		}
		if j < 0 {
			return true
		}
		shift := j - last[text[s+j]]
		if shift < 1 {
			shift = 1
		}
		s += shift
	}
	return false
}
