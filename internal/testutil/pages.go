package testutil

import "fmt"

// NotFoundPage is what the register serves for an unknown document number
const NotFoundPage = "<html><body>\n  Документ с данным номером отсутствует\n</body></html>"

// PatentPage returns a well-formed register page for number
func PatentPage(number string) string {
	return fmt.Sprintf(`<html><body>
<table id="bib"><tr><td>
<p>(21)(22) Заявка: <b>4948483/12, 21.06.1991</b></p>
<p>(56) Список документов, цитированных в отчете о поиске: <b>SU 123456. US 4567890</b></p>
</td><td>
<p>(72) Автор(ы): <b>Иванов Иван Иванович (RU)</b></p>
<p>(73) Патентообладатель(и): <b>ООО "Мебель" (RU)</b></p>
</td></tr></table>
<table class="tp">
<tr><td><div class="topfield2">RU</div></td></tr>
<tr><td><div class="topfield2">(%s)</div></td></tr>
<tr><td><div class="topfield2">C1</div></td></tr>
<tr><td><div><ul><li>(A47B 1/00)</li></ul></div></td></tr>
<tr><td>МПК</td></tr>
<tr><td>A47B2200/0011</td></tr>
</table>
<p id="B542">(54) СТОЛ РАЗДВИЖНОЙ</p>
<div id="Abs"><p>(57) Реферат:</p><p>Стол содержит столешницу.</p></div>
<p>Изобретение относится к мебели.</p>
<p>Стол работает так.</p>
<p>Источники информации</p>
<p>1. SU 123456, 1980.</p>
<p>Формула изобретения</p>
<p>Стол раздвижной.</p>
</body></html>`, number)
}
